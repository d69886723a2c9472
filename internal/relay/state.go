package relay

import (
	"sync"

	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
)

// Participant is one connection as the relay sees it.
// Send must not block: it queues the payload for delivery.
type Participant interface {
	ID() string
	Send(payload protocol.Payload) error
}

// MatchSession pairs two participants. A slot becomes nil when its participant disconnects.
type MatchSession struct {
	ID string

	// players[0] plays X, players[1] plays O
	players  [2]Participant
	resolved bool
}

func newMatchSession(id string, first, second Participant) *MatchSession {
	return &MatchSession{
		ID:      id,
		players: [2]Participant{first, second},
	}
}

// Members - participants still connected, X first.
func (that *MatchSession) Members() []Participant {
	members := make([]Participant, 0, len(that.players))

	for _, player := range that.players {
		if player != nil {
			members = append(members, player)
		}
	}

	return members
}

func (that *MatchSession) remove(participantID string) {
	for i, player := range that.players {
		if player != nil && player.ID() == participantID {
			that.players[i] = nil
		}
	}
}

func (that *MatchSession) isEmpty() bool {
	return that.players[0] == nil && that.players[1] == nil
}

// State is everything the relay shares between connections: the waiting slot and the session table.
// All access goes through its mutex.
type State struct {
	mu sync.Mutex

	waiting  Participant
	sessions map[string]*MatchSession
	memberOf map[string]string // participant id -> session id
}

func NewState() *State {
	return &State{
		sessions: make(map[string]*MatchSession),
		memberOf: make(map[string]string),
	}
}

// Stats is a point-in-time view of the state.
type Stats struct {
	WaitingID string `json:"waitingId,omitempty"`
	Sessions  int    `json:"sessions"`
}

func (that *State) Stats() Stats {
	that.mu.Lock()
	defer that.mu.Unlock()

	stats := Stats{Sessions: len(that.sessions)}
	if that.waiting != nil {
		stats.WaitingID = that.waiting.ID()
	}

	return stats
}
