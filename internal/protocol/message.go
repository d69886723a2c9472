package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

type Action string

const (
	ActionWaiting              Action = "waiting"
	ActionSessionStart         Action = "sessionStart"
	ActionMove                 Action = "move"
	ActionCandidateOutcome     Action = "candidateOutcome"
	ActionAuthoritativeOutcome Action = "authoritativeOutcome"
)

// Message is the envelope of every frame exchanged between clients and the relay.
type Message struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Payload is implemented by exactly the message types below.
type Payload interface {
	Action() Action
}

// Waiting - relay to client, the connection sits in the waiting slot.
type Waiting struct {
	Message string `json:"message"`
}

// SessionStart - relay to client, the connection has been paired.
type SessionStart struct {
	SessionID string      `json:"sessionId"`
	Symbol    entity.Mark `json:"symbol"`
	Opponent  string      `json:"opponent,omitempty"`
}

// Move - client to relay, then relay to the opponent unchanged.
type Move struct {
	SessionID string      `json:"sessionId"`
	Index     int         `json:"index"`
	Symbol    entity.Mark `json:"symbol"`
}

// CandidateOutcome - client to relay, the locally computed result.
type CandidateOutcome struct {
	SessionID string         `json:"sessionId"`
	Outcome   entity.Outcome `json:"outcome"`
}

// AuthoritativeOutcome - relay to both participants, binding for scoring.
type AuthoritativeOutcome struct {
	SessionID string         `json:"sessionId"`
	Outcome   entity.Outcome `json:"outcome"`
}

func (Waiting) Action() Action              { return ActionWaiting }
func (SessionStart) Action() Action         { return ActionSessionStart }
func (Move) Action() Action                 { return ActionMove }
func (CandidateOutcome) Action() Action     { return ActionCandidateOutcome }
func (AuthoritativeOutcome) Action() Action { return ActionAuthoritativeOutcome }

// Encode - wraps the payload into an envelope and marshals it.
func Encode(payload Payload) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", payload.Action(), err)
	}

	data, err := json.Marshal(Message{Action: payload.Action(), Payload: body})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal message: %w", err)
	}

	return data, nil
}

// Decode - parses an envelope and returns its typed payload.
func Decode(data []byte) (Payload, error) {
	var message Message
	if err := json.Unmarshal(data, &message); err != nil {
		return nil, fmt.Errorf("%w: %w", apperror.ErrMalformedMessage, err)
	}

	var (
		payload Payload
		err     error
	)

	switch message.Action {
	case ActionWaiting:
		payload, err = decodeAs[Waiting](message.Payload)
	case ActionSessionStart:
		payload, err = decodeAs[SessionStart](message.Payload)
	case ActionMove:
		payload, err = decodeAs[Move](message.Payload)
	case ActionCandidateOutcome:
		payload, err = decodeAs[CandidateOutcome](message.Payload)
	case ActionAuthoritativeOutcome:
		payload, err = decodeAs[AuthoritativeOutcome](message.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", apperror.ErrUnknownAction, message.Action)
	}

	if err != nil {
		return nil, err
	}

	if err = validate(payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperror.ErrMalformedMessage, message.Action, err)
	}

	return payload, nil
}

func decodeAs[T Payload](raw json.RawMessage) (Payload, error) {
	var payload T

	if len(raw) == 0 {
		return payload, nil
	}

	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", apperror.ErrMalformedMessage, payload.Action(), err)
	}

	return payload, nil
}

var (
	errMissingSession = errors.New("missing sessionId")
	errBadSymbol      = errors.New("symbol must be X or O")
	errNoOutcome      = errors.New("outcome must be X, O or draw")
)

func validate(payload Payload) error {
	switch p := payload.(type) {
	case Waiting:
		return nil
	case SessionStart:
		if p.SessionID == "" {
			return errMissingSession
		}
		if !p.Symbol.IsPlayer() {
			return errBadSymbol
		}
	case Move:
		if p.SessionID == "" {
			return errMissingSession
		}
		if !p.Symbol.IsPlayer() {
			return errBadSymbol
		}
	case CandidateOutcome:
		if p.SessionID == "" {
			return errMissingSession
		}
		if !p.Outcome.IsTerminal() {
			return errNoOutcome
		}
	case AuthoritativeOutcome:
		if p.SessionID == "" {
			return errMissingSession
		}
		if !p.Outcome.IsTerminal() {
			return errNoOutcome
		}
	}

	return nil
}
