package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
	"github.com/rocketscienceinc/tictactoe-relay/internal/protocol"
	"github.com/rocketscienceinc/tictactoe-relay/internal/relay"
	"github.com/rocketscienceinc/tictactoe-relay/internal/repository"
	"github.com/rocketscienceinc/tictactoe-relay/internal/tictactoe"
	mockedPresenter "github.com/rocketscienceinc/tictactoe-relay/mocks/presenter"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func outcomeOf(expected entity.Outcome) interface{} {
	return mock.MatchedBy(func(actual entity.Outcome) bool {
		return expected.Equal(actual)
	})
}

// inbox is the relay side of an in-memory connection. Deliveries are queued until the test drains them.
type inbox struct {
	id string

	mu      sync.Mutex
	pending []protocol.Payload
}

func (that *inbox) ID() string {
	return that.id
}

func (that *inbox) Send(payload protocol.Payload) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.pending = append(that.pending, payload)

	return nil
}

func (that *inbox) take() []protocol.Payload {
	that.mu.Lock()
	defer that.mu.Unlock()

	pending := that.pending
	that.pending = nil

	return pending
}

// relayChannel is the client side: sends go straight into the relay.
type relayChannel struct {
	relay *relay.Relay
	inbox *inbox
}

func (that *relayChannel) Send(ctx context.Context, payload protocol.Payload) error {
	_ = that.relay.Handle(ctx, that.inbox, payload)
	return nil
}

func (that *relayChannel) Receive(context.Context) (protocol.Payload, error) {
	return nil, errors.New("not used")
}

func (that *relayChannel) Close() error {
	return nil
}

type player struct {
	inbox      *inbox
	client     *Client
	controller *tictactoe.GameController
	presenter  *mockedPresenter.MockPresenter
}

func newPlayer(t *testing.T, r *relay.Relay, id string) *player {
	t.Helper()

	presenter := mockedPresenter.NewMockPresenter(t)
	controller := tictactoe.NewGameController(tictactoe.ModeNetworked, presenter)
	box := &inbox{id: id}

	r.Connect(context.Background(), box)

	return &player{
		inbox:      box,
		client:     NewClient(discard, &relayChannel{relay: r, inbox: box}, controller, presenter),
		controller: controller,
		presenter:  presenter,
	}
}

func (that *player) drain(t *testing.T) {
	t.Helper()

	for _, payload := range that.inbox.take() {
		err := that.client.Handle(payload)
		if err != nil && !errors.Is(err, apperror.ErrStaleMessage) {
			require.NoError(t, err, "handling %s", payload.Action())
		}
	}
}

func newMatch(t *testing.T) (*player, *player) {
	t.Helper()

	r := relay.New(discard, relay.NewState(), repository.NewMemoryOutcomeRepository(), func() string { return "match-1" })

	x := newPlayer(t, r, "x")
	o := newPlayer(t, r, "o")
	x.drain(t)
	o.drain(t)

	return x, o
}

// playMoves alternates moves between the two players, X first, delivering each move before the next.
func playMoves(t *testing.T, x, o *player, cells ...int) {
	t.Helper()

	players := [2]*player{x, o}
	for i, cell := range cells {
		mover, watcher := players[i%2], players[(i+1)%2]

		require.NoError(t, mover.client.Play(context.Background(), cell), "cell %d", cell)
		watcher.drain(t)
	}

	x.drain(t)
	o.drain(t)
}

func TestClient_SessionStart(t *testing.T) {
	x, o := newMatch(t)

	assert.Equal(t, "match-1", x.client.SessionID())
	assert.Equal(t, "match-1", o.client.SessionID())
	assert.Equal(t, "o", x.client.Opponent())
	assert.Equal(t, entity.MarkX, x.controller.Mark())
	assert.Equal(t, entity.MarkO, o.controller.Mark())

	x.presenter.AssertCalled(t, "WaitingStatus", relay.WaitingMessage)
	x.presenter.AssertCalled(t, "WaitingStatus", "Game started! You are X")
	x.presenter.AssertCalled(t, "WaitingStatus", StatusYourTurn)
	o.presenter.AssertCalled(t, "WaitingStatus", "Game started! You are O")
	o.presenter.AssertNotCalled(t, "WaitingStatus", StatusYourTurn)
}

func TestClient_Win(t *testing.T) {
	// Given: a paired match where both sides expect X to win
	x, o := newMatch(t)
	x.presenter.On("OutcomeFinal", outcomeOf(entity.Win(entity.MarkX))).Once()
	o.presenter.On("OutcomeFinal", outcomeOf(entity.Win(entity.MarkX))).Once()

	// When: X completes the top row
	playMoves(t, x, o, 0, 3, 1, 4, 2)

	// Then: both clients scored the same single win
	assert.Equal(t, entity.Score{X: 1}, x.client.Score())
	assert.Equal(t, entity.Score{X: 1}, o.client.Score())
	assert.True(t, x.controller.IsFinalized())
	assert.True(t, o.controller.IsFinalized())

	// the loser saw the winning mark before the result
	assert.Equal(t, entity.MarkX, o.controller.Board()[2])
	assert.Equal(t, x.controller.Board(), o.controller.Board())
}

func TestClient_Draw(t *testing.T) {
	x, o := newMatch(t)
	x.presenter.On("OutcomeFinal", outcomeOf(entity.Draw())).Once()
	o.presenter.On("OutcomeFinal", outcomeOf(entity.Draw())).Once()

	// X O X / X O O / O X X
	playMoves(t, x, o, 0, 1, 2, 4, 3, 5, 7, 6, 8)

	assert.Equal(t, entity.Score{}, x.client.Score())
	assert.Equal(t, entity.Score{}, o.client.Score())
	assert.Equal(t, tictactoe.StateTerminal, o.controller.State())
}

func TestClient_DuplicateOutcome(t *testing.T) {
	x, o := newMatch(t)
	x.presenter.On("OutcomeFinal", outcomeOf(entity.Win(entity.MarkX))).Once()
	o.presenter.On("OutcomeFinal", outcomeOf(entity.Win(entity.MarkX))).Once()
	playMoves(t, x, o, 0, 3, 1, 4, 2)

	// When: the authoritative outcome arrives a second time
	err := x.client.Handle(protocol.AuthoritativeOutcome{SessionID: "match-1", Outcome: entity.Win(entity.MarkX)})

	// Then: it is stale and the score is unchanged
	require.ErrorIs(t, err, apperror.ErrStaleMessage)
	assert.Equal(t, entity.Score{X: 1}, x.client.Score())
}

func TestClient_LockedBeforeConfirmation(t *testing.T) {
	x, o := newMatch(t)
	x.presenter.On("OutcomeFinal", outcomeOf(entity.Win(entity.MarkX))).Once()
	o.presenter.On("OutcomeFinal", outcomeOf(entity.Win(entity.MarkX))).Once()

	playMoves(t, x, o, 0, 3, 1, 4)

	// When: X wins but the relay's answer has not been delivered yet
	require.NoError(t, x.client.Play(context.Background(), 2))

	// Then: X is locked and unscored
	assert.Equal(t, tictactoe.StateTerminal, x.controller.State())
	assert.Equal(t, entity.Score{}, x.client.Score())
	require.ErrorIs(t, x.client.Play(context.Background(), 8), apperror.ErrGameFinished)

	// a move still sitting in O's queue after its lock is ignored
	o.drain(t)
	_, err := o.controller.ApplyRemote(8, entity.MarkX)
	require.ErrorIs(t, err, apperror.ErrStaleMessage)

	x.drain(t)
	assert.Equal(t, entity.Score{X: 1}, x.client.Score())
}

func TestClient_Play_Rejects(t *testing.T) {
	t.Run("No session", func(t *testing.T) {
		presenter := mockedPresenter.NewMockPresenter(t)
		controller := tictactoe.NewGameController(tictactoe.ModeNetworked, presenter)
		client := NewClient(discard, &relayChannel{}, controller, presenter)

		err := client.Play(context.Background(), 0)

		require.ErrorIs(t, err, apperror.ErrNoSession)
	})

	t.Run("Not your turn sends nothing", func(t *testing.T) {
		x, o := newMatch(t)

		err := o.client.Play(context.Background(), 0)

		require.ErrorIs(t, err, apperror.ErrNotYourTurn)
		assert.Empty(t, x.inbox.take())
	})

	t.Run("Occupied cell sends nothing", func(t *testing.T) {
		x, o := newMatch(t)
		playMoves(t, x, o, 4)

		err := o.client.Play(context.Background(), 4)

		require.ErrorIs(t, err, apperror.ErrInvalidMove)
		assert.Empty(t, x.inbox.take())
	})
}

func TestClient_Handle_Stale(t *testing.T) {
	x, _ := newMatch(t)

	tests := []struct {
		name    string
		payload protocol.Payload
	}{
		{name: "Move for another session", payload: protocol.Move{SessionID: "other", Index: 0, Symbol: entity.MarkO}},
		{name: "Own move echoed", payload: protocol.Move{SessionID: "match-1", Index: 0, Symbol: entity.MarkX}},
		{name: "Outcome for another session", payload: protocol.AuthoritativeOutcome{SessionID: "other", Outcome: entity.Draw()}},
		{name: "Candidate outcome", payload: protocol.CandidateOutcome{SessionID: "match-1", Outcome: entity.Draw()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := x.client.Handle(tt.payload)

			require.ErrorIs(t, err, apperror.ErrStaleMessage)
			assert.Equal(t, entity.NewBoard(), x.controller.Board())
		})
	}
}

type received struct {
	payload protocol.Payload
	err     error
}

type scriptedChannel struct {
	frames chan received
	closed chan struct{}
	once   sync.Once

	closeCalls atomic.Int32
}

func newScriptedChannel(frames ...received) *scriptedChannel {
	channel := &scriptedChannel{
		frames: make(chan received, len(frames)),
		closed: make(chan struct{}),
	}

	for _, frame := range frames {
		channel.frames <- frame
	}

	return channel
}

func (that *scriptedChannel) Send(context.Context, protocol.Payload) error {
	return nil
}

func (that *scriptedChannel) Receive(context.Context) (protocol.Payload, error) {
	select {
	case frame := <-that.frames:
		return frame.payload, frame.err
	case <-that.closed:
		return nil, fmt.Errorf("%w: closed", apperror.ErrChannelLost)
	}
}

func (that *scriptedChannel) Close() error {
	that.closeCalls.Add(1)
	that.once.Do(func() { close(that.closed) })
	return nil
}

func TestClient_Run(t *testing.T) {
	t.Run("Channel loss is reported", func(t *testing.T) {
		// Given: a waiting message, an undecodable frame and then a broken connection
		presenter := mockedPresenter.NewMockPresenter(t)
		controller := tictactoe.NewGameController(tictactoe.ModeNetworked, presenter)
		channel := newScriptedChannel(
			received{payload: protocol.Waiting{Message: relay.WaitingMessage}},
			received{err: fmt.Errorf("%w: bad json", apperror.ErrMalformedMessage)},
			received{err: fmt.Errorf("%w: reset by peer", apperror.ErrChannelLost)},
		)
		client := NewClient(discard, channel, controller, presenter)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// When
		err := client.Run(ctx)

		// Then
		require.ErrorIs(t, err, apperror.ErrChannelLost)
		presenter.AssertCalled(t, "WaitingStatus", relay.WaitingMessage)
		presenter.AssertCalled(t, "WaitingStatus", StatusChannelLost)
	})

	t.Run("Channel is left alone after the pump returns", func(t *testing.T) {
		// Given: the pump already returned on a broken connection
		presenter := mockedPresenter.NewMockPresenter(t)
		controller := tictactoe.NewGameController(tictactoe.ModeNetworked, presenter)
		channel := newScriptedChannel(received{err: fmt.Errorf("%w: reset by peer", apperror.ErrChannelLost)})
		client := NewClient(discard, channel, controller, presenter)

		ctx, cancel := context.WithCancel(context.Background())
		require.ErrorIs(t, client.Run(ctx), apperror.ErrChannelLost)

		// When: the caller cancels later
		cancel()

		// Then: nothing is still watching the context
		assert.Never(t, func() bool {
			return channel.closeCalls.Load() > 0
		}, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("Cancelled context stops quietly", func(t *testing.T) {
		presenter := mockedPresenter.NewMockPresenter(t)
		controller := tictactoe.NewGameController(tictactoe.ModeNetworked, presenter)
		client := NewClient(discard, newScriptedChannel(), controller, presenter)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		require.NoError(t, client.Run(ctx))
		presenter.AssertNotCalled(t, "WaitingStatus", StatusChannelLost)
	})
}

// recordingChannel keeps every outbound payload in order.
type recordingChannel struct {
	mu   sync.Mutex
	sent []protocol.Payload
}

func (that *recordingChannel) Send(_ context.Context, payload protocol.Payload) error {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.sent = append(that.sent, payload)

	return nil
}

func (that *recordingChannel) Receive(context.Context) (protocol.Payload, error) {
	return nil, errors.New("not used")
}

func (that *recordingChannel) Close() error {
	return nil
}

func (that *recordingChannel) Sent() []protocol.Payload {
	that.mu.Lock()
	defer that.mu.Unlock()

	return append([]protocol.Payload(nil), that.sent...)
}

func newRecordedClient(t *testing.T, mark entity.Mark) (*Client, *recordingChannel) {
	t.Helper()

	presenter := mockedPresenter.NewMockPresenter(t)
	controller := tictactoe.NewGameController(tictactoe.ModeNetworked, presenter)
	channel := &recordingChannel{}
	client := NewClient(discard, channel, controller, presenter)

	require.NoError(t, client.Handle(protocol.SessionStart{SessionID: "s1", Symbol: mark}))

	return client, channel
}

func TestClient_Play_Outbound(t *testing.T) {
	ctx := context.Background()

	t.Run("Non-terminal move sends one move", func(t *testing.T) {
		client, channel := newRecordedClient(t, entity.MarkX)

		require.NoError(t, client.Play(ctx, 4))

		assert.Equal(t, []protocol.Payload{
			protocol.Move{SessionID: "s1", Index: 4, Symbol: entity.MarkX},
		}, channel.Sent())
	})

	t.Run("Winning move sends the move then one candidate", func(t *testing.T) {
		// Given: X holds 0 and 1, O holds 3 and 4
		client, channel := newRecordedClient(t, entity.MarkX)
		require.NoError(t, client.Play(ctx, 0))
		require.NoError(t, client.Handle(protocol.Move{SessionID: "s1", Index: 3, Symbol: entity.MarkO}))
		require.NoError(t, client.Play(ctx, 1))
		require.NoError(t, client.Handle(protocol.Move{SessionID: "s1", Index: 4, Symbol: entity.MarkO}))

		// When: X completes the top row
		require.NoError(t, client.Play(ctx, 2))

		// Then: three moves, and a single candidate after the last one
		sent := channel.Sent()
		require.Len(t, sent, 4)
		assert.Equal(t, []protocol.Payload{
			protocol.Move{SessionID: "s1", Index: 0, Symbol: entity.MarkX},
			protocol.Move{SessionID: "s1", Index: 1, Symbol: entity.MarkX},
			protocol.Move{SessionID: "s1", Index: 2, Symbol: entity.MarkX},
		}, sent[:3])

		candidate, ok := sent[3].(protocol.CandidateOutcome)
		require.True(t, ok)
		assert.Equal(t, "s1", candidate.SessionID)
		assert.True(t, candidate.Outcome.Equal(entity.Win(entity.MarkX)))
	})

	t.Run("Losing through a relayed move sends no candidate", func(t *testing.T) {
		client, channel := newRecordedClient(t, entity.MarkO)

		require.NoError(t, client.Handle(protocol.Move{SessionID: "s1", Index: 0, Symbol: entity.MarkX}))
		require.NoError(t, client.Play(ctx, 3))
		require.NoError(t, client.Handle(protocol.Move{SessionID: "s1", Index: 1, Symbol: entity.MarkX}))
		require.NoError(t, client.Play(ctx, 4))

		// When: X wins on the watcher's board
		require.NoError(t, client.Handle(protocol.Move{SessionID: "s1", Index: 2, Symbol: entity.MarkX}))

		// Then: only the watcher's own two moves went out
		assert.Equal(t, []protocol.Payload{
			protocol.Move{SessionID: "s1", Index: 3, Symbol: entity.MarkO},
			protocol.Move{SessionID: "s1", Index: 4, Symbol: entity.MarkO},
		}, channel.Sent())
	})
}

func TestClient_OutcomeBeforePairing(t *testing.T) {
	// Given: a client that has not been paired yet
	presenter := mockedPresenter.NewMockPresenter(t)
	controller := tictactoe.NewGameController(tictactoe.ModeNetworked, presenter)
	client := NewClient(discard, &recordingChannel{}, controller, presenter)

	// When: an outcome arrives without a session, then the session starts
	err := client.Handle(protocol.AuthoritativeOutcome{Outcome: entity.Win(entity.MarkX)})
	require.NoError(t, client.Handle(protocol.SessionStart{SessionID: "s1", Symbol: entity.MarkX}))

	// Then: the outcome was stale and nothing was scored
	require.ErrorIs(t, err, apperror.ErrStaleMessage)
	assert.Equal(t, entity.Score{}, client.Score())
	assert.False(t, client.IsFinalized())
	presenter.AssertNotCalled(t, "OutcomeFinal", mock.Anything)
}
