package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/relay"
)

type Handlers interface {
	PingHandler(w http.ResponseWriter, _ *http.Request)

	GetOutcome(w http.ResponseWriter, r *http.Request)
	GetStats(w http.ResponseWriter, _ *http.Request)
}

type outcomeRepo interface {
	GetByID(ctx context.Context, sessionID string) (entity.Outcome, error)
}

type relayState interface {
	Stats() relay.Stats
}

type handlers struct {
	logger *slog.Logger

	outcomeRepo outcomeRepo
	state       relayState
}

func NewHandlers(logger *slog.Logger, outcomeRepo outcomeRepo, state relayState) Handlers {
	return &handlers{
		logger:      logger.With("component", "rest"),
		outcomeRepo: outcomeRepo,
		state:       state,
	}
}

func (that *handlers) PingHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("pong")); err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
}

type outcomeResponse struct {
	SessionID string         `json:"sessionId"`
	Outcome   entity.Outcome `json:"outcome"`
}

// GetOutcome - the authoritative outcome recorded for a session.
func (that *handlers) GetOutcome(w http.ResponseWriter, r *http.Request) {
	log := that.logger.With("method", "GetOutcome")

	sessionID := r.PathValue("sessionID")

	outcome, err := that.outcomeRepo.GetByID(r.Context(), sessionID)
	if errors.Is(err, apperror.ErrOutcomeNotFound) {
		http.Error(w, "outcome not found", http.StatusNotFound)
		return
	}

	if err != nil {
		log.Error("failed to get outcome", "sessionID", sessionID, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	writeJSON(log, w, outcomeResponse{SessionID: sessionID, Outcome: outcome})
}

func (that *handlers) GetStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(that.logger.With("method", "GetStats"), w, that.state.Stats())
}

func writeJSON(log *slog.Logger, w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Error("failed to write response", "error", err)
	}
}
