package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
)

const WaitingMessage = "Waiting for another player..."

type outcomeRepo interface {
	Claim(ctx context.Context, sessionID string, outcome entity.Outcome) (bool, error)
}

// Relay pairs connections into sessions, forwards moves and arbitrates outcomes.
// It knows nothing about the game rules.
type Relay struct {
	logger      *slog.Logger
	state       *State
	outcomeRepo outcomeRepo
	newID       func() string
}

func New(logger *slog.Logger, state *State, outcomeRepo outcomeRepo, newID func() string) *Relay {
	return &Relay{
		logger:      logger.With("component", "relay"),
		state:       state,
		outcomeRepo: outcomeRepo,
		newID:       newID,
	}
}

// Connect - puts the participant in the waiting slot, or pairs it with the participant already there.
func (that *Relay) Connect(_ context.Context, participant Participant) {
	log := that.logger.With("method", "Connect", "participantID", participant.ID())

	that.state.mu.Lock()
	defer that.state.mu.Unlock()

	first := that.state.waiting
	if first == nil || first.ID() == participant.ID() {
		that.state.waiting = participant
		that.send(log, participant, protocol.Waiting{Message: WaitingMessage})

		log.Info("participant is waiting for an opponent")
		return
	}

	session := newMatchSession(that.newID(), first, participant)
	that.state.waiting = nil
	that.state.sessions[session.ID] = session
	that.state.memberOf[first.ID()] = session.ID
	that.state.memberOf[participant.ID()] = session.ID

	// both starts are queued before the lock is released, so no relayed move can overtake them
	that.send(log, first, protocol.SessionStart{SessionID: session.ID, Symbol: entity.MarkX, Opponent: participant.ID()})
	that.send(log, participant, protocol.SessionStart{SessionID: session.ID, Symbol: entity.MarkO, Opponent: first.ID()})

	log.Info("session started", "sessionID", session.ID, "opponentID", first.ID())
}

// Disconnect - frees the waiting slot or the participant's seat in its session.
func (that *Relay) Disconnect(_ context.Context, participant Participant) {
	log := that.logger.With("method", "Disconnect", "participantID", participant.ID())

	that.state.mu.Lock()
	defer that.state.mu.Unlock()

	if that.state.waiting != nil && that.state.waiting.ID() == participant.ID() {
		that.state.waiting = nil
		log.Info("waiting slot cleared")
	}

	sessionID, ok := that.state.memberOf[participant.ID()]
	if !ok {
		return
	}

	delete(that.state.memberOf, participant.ID())

	session, ok := that.state.sessions[sessionID]
	if !ok {
		return
	}

	session.remove(participant.ID())
	if session.isEmpty() {
		delete(that.state.sessions, sessionID)
		log.Info("session closed", "sessionID", sessionID)
	}
}

// Handle - routes one inbound payload. Messages clients must not send, and messages for unknown sessions,
// are dropped with an ErrStaleMessage.
func (that *Relay) Handle(ctx context.Context, from Participant, payload protocol.Payload) error {
	switch message := payload.(type) {
	case protocol.Move:
		return that.Forward(ctx, from, message)
	case protocol.CandidateOutcome:
		return that.Arbitrate(ctx, from, message)
	case protocol.Waiting, protocol.SessionStart, protocol.AuthoritativeOutcome:
		return fmt.Errorf("%w: %s is relay-only", apperror.ErrStaleMessage, payload.Action())
	default:
		return fmt.Errorf("%w: %T", apperror.ErrUnknownAction, payload)
	}
}

// Forward - sends the move verbatim to every other member of its session.
func (that *Relay) Forward(_ context.Context, from Participant, move protocol.Move) error {
	log := that.logger.With("method", "Forward", "sessionID", move.SessionID)

	that.state.mu.Lock()
	defer that.state.mu.Unlock()

	session, ok := that.state.sessions[move.SessionID]
	if !ok {
		return fmt.Errorf("%w: session %s", apperror.ErrStaleMessage, move.SessionID)
	}

	for _, member := range session.Members() {
		if member.ID() == from.ID() {
			continue
		}

		that.send(log, member, move)
	}

	return nil
}

// Arbitrate - turns the first candidate outcome of a session into the authoritative outcome for every member.
// Later candidates for the same session are suppressed, whoever sends them.
func (that *Relay) Arbitrate(ctx context.Context, from Participant, candidate protocol.CandidateOutcome) error {
	log := that.logger.With("method", "Arbitrate", "sessionID", candidate.SessionID, "participantID", from.ID())

	that.state.mu.Lock()
	session, ok := that.state.sessions[candidate.SessionID]
	resolved := ok && session.resolved
	that.state.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: session %s", apperror.ErrStaleMessage, candidate.SessionID)
	}

	if resolved {
		log.Debug("outcome already resolved, candidate suppressed")
		return nil
	}

	claimed, err := that.outcomeRepo.Claim(ctx, candidate.SessionID, candidate.Outcome)
	if err != nil {
		// the session flag below still keeps this relay to a single broadcast
		log.Error("failed to record outcome", "error", err)
		claimed = true
	}

	that.state.mu.Lock()
	defer that.state.mu.Unlock()

	if !claimed || session.resolved {
		session.resolved = true
		log.Debug("outcome already claimed, candidate suppressed")
		return nil
	}

	session.resolved = true

	authoritative := protocol.AuthoritativeOutcome{SessionID: session.ID, Outcome: candidate.Outcome}
	for _, member := range session.Members() {
		that.send(log, member, authoritative)
	}

	log.Info("authoritative outcome broadcast", "outcome", candidate.Outcome.String())

	return nil
}

func (that *Relay) send(log *slog.Logger, participant Participant, payload protocol.Payload) {
	if err := participant.Send(payload); err != nil {
		log.Warn("failed to send message", "participantID", participant.ID(), "action", payload.Action(), "error", err)
	}
}
