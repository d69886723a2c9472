package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-relay/internal/tictactoe"
)

const (
	StatusYourTurn    = "Your Turn!"
	StatusChannelLost = "Connection to the server lost"
)

// Client keeps a networked controller in step with the relay.
type Client struct {
	logger *slog.Logger

	// mu serializes the inbound pump and local input around the controller
	mu         sync.Mutex
	channel    Channel
	controller *tictactoe.GameController
	presenter  tictactoe.Presenter

	sessionID string
	opponent  string
}

func NewClient(logger *slog.Logger, channel Channel, controller *tictactoe.GameController, presenter tictactoe.Presenter) *Client {
	return &Client{
		logger:     logger.With("component", "session"),
		channel:    channel,
		controller: controller,
		presenter:  presenter,
	}
}

// Play - makes a local move and reports it to the relay. The move goes out before the candidate outcome
// so the opponent sees the final mark before the result.
func (that *Client) Play(ctx context.Context, index int) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	if that.sessionID == "" {
		return apperror.ErrNoSession
	}

	outcome, err := that.controller.Play(index)
	if err != nil {
		return err
	}

	move := protocol.Move{SessionID: that.sessionID, Index: index, Symbol: that.controller.Mark()}
	if err = that.channel.Send(ctx, move); err != nil {
		return fmt.Errorf("failed to send move: %w", err)
	}

	if !outcome.IsTerminal() {
		return nil
	}

	candidate := protocol.CandidateOutcome{SessionID: that.sessionID, Outcome: outcome}
	if err = that.channel.Send(ctx, candidate); err != nil {
		return fmt.Errorf("failed to send candidate outcome: %w", err)
	}

	return nil
}

// Handle - applies one inbound message. Stale messages return ErrStaleMessage and change nothing.
func (that *Client) Handle(payload protocol.Payload) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	switch message := payload.(type) {
	case protocol.Waiting:
		that.presenter.WaitingStatus(message.Message)
		return nil
	case protocol.SessionStart:
		return that.start(message)
	case protocol.Move:
		return that.applyMove(message)
	case protocol.AuthoritativeOutcome:
		return that.finalize(message)
	case protocol.CandidateOutcome:
		return fmt.Errorf("%w: candidate outcomes are not sent to clients", apperror.ErrStaleMessage)
	default:
		return fmt.Errorf("%w: %T", apperror.ErrUnknownAction, payload)
	}
}

func (that *Client) start(message protocol.SessionStart) error {
	if err := that.controller.AssignMark(message.Symbol); err != nil {
		return err
	}

	that.sessionID = message.SessionID
	that.opponent = message.Opponent
	that.controller.Reset()

	that.presenter.WaitingStatus(fmt.Sprintf("Game started! You are %s", message.Symbol))
	that.announceTurn()

	that.logger.Info("session started", "sessionID", message.SessionID, "symbol", message.Symbol, "opponent", message.Opponent)

	return nil
}

func (that *Client) applyMove(message protocol.Move) error {
	if message.SessionID != that.sessionID {
		return fmt.Errorf("%w: move for session %q", apperror.ErrStaleMessage, message.SessionID)
	}

	if message.Symbol == that.controller.Mark() {
		return fmt.Errorf("%w: own move echoed", apperror.ErrStaleMessage)
	}

	// a remote win or draw only locks the board; the score waits for the relay
	if _, err := that.controller.ApplyRemote(message.Index, message.Symbol); err != nil {
		return err
	}

	that.announceTurn()

	return nil
}

func (that *Client) finalize(message protocol.AuthoritativeOutcome) error {
	if that.sessionID == "" || message.SessionID != that.sessionID {
		return fmt.Errorf("%w: outcome for session %q", apperror.ErrStaleMessage, message.SessionID)
	}

	if !that.controller.Finalize(message.Outcome) {
		return fmt.Errorf("%w: outcome already applied", apperror.ErrStaleMessage)
	}

	that.logger.Info("match finished", "sessionID", that.sessionID, "outcome", message.Outcome.String())

	return nil
}

func (that *Client) announceTurn() {
	if that.controller.State() != tictactoe.StateTerminal && that.controller.Turn() == that.controller.Mark() {
		that.presenter.WaitingStatus(StatusYourTurn)
	}
}

// Run - pumps inbound messages into Handle until the channel fails or ctx is done.
func (that *Client) Run(ctx context.Context) error {
	log := that.logger.With("method", "Run")

	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			_ = that.channel.Close()
		case <-done:
		}
	}()

	for {
		payload, err := that.channel.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			if errors.Is(err, apperror.ErrMalformedMessage) || errors.Is(err, apperror.ErrUnknownAction) {
				log.Warn("dropping undecodable message", "error", err)
				continue
			}

			log.Error("connection lost", "error", err)
			that.presenter.WaitingStatus(StatusChannelLost)

			return fmt.Errorf("%w: %w", apperror.ErrChannelLost, err)
		}

		if err = that.Handle(payload); err != nil {
			if errors.Is(err, apperror.ErrStaleMessage) {
				log.Debug("stale message ignored", "action", payload.Action(), "error", err)
				continue
			}

			log.Warn("failed to handle message", "action", payload.Action(), "error", err)
		}
	}
}

// SessionID - the current session, empty before pairing.
func (that *Client) SessionID() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.sessionID
}

func (that *Client) Opponent() string {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.opponent
}

// IsFinalized - whether the relay's outcome for the current match has been applied.
func (that *Client) IsFinalized() bool {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.controller.IsFinalized()
}

func (that *Client) Score() entity.Score {
	that.mu.Lock()
	defer that.mu.Unlock()

	return that.controller.Score()
}
