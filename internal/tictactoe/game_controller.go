package tictactoe

import (
	"fmt"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

type State int

const (
	StateAwaitingFirstMove State = iota
	StateInProgress
	StateTerminal
)

func (that State) String() string {
	switch that {
	case StateAwaitingFirstMove:
		return "awaiting_first_move"
	case StateInProgress:
		return "in_progress"
	case StateTerminal:
		return "terminal"
	default:
		return fmt.Sprintf("state(%d)", int(that))
	}
}

type Mode int

const (
	// ModeOffline - two players share one controller, terminal outcomes are final at once.
	ModeOffline Mode = iota
	// ModeNetworked - terminal outcomes only lock input until the relay confirms them.
	ModeNetworked
)

// Presenter receives state changes. Implementations render them.
type Presenter interface {
	BoardChanged(board entity.Board)
	TurnChanged(mark entity.Mark)
	OutcomeFinal(outcome entity.Outcome)
	WaitingStatus(message string)
}

// GameController owns one player's view of a match. It is not safe for concurrent use.
type GameController struct {
	mode      Mode
	presenter Presenter

	board   entity.Board
	turn    entity.Mark
	state   State
	outcome entity.Outcome

	// mark assigned by the relay, networked mode only
	mark entity.Mark

	// applied is set once the outcome of the current match has been counted
	applied bool
	score   entity.Score
}

func NewGameController(mode Mode, presenter Presenter) *GameController {
	controller := &GameController{
		mode:      mode,
		presenter: presenter,
	}

	controller.reset()

	return controller
}

// Reset - starts a new match with X to move. The score is kept.
func (that *GameController) Reset() {
	that.reset()

	that.presenter.BoardChanged(that.board)
	that.presenter.TurnChanged(that.turn)
}

func (that *GameController) reset() {
	that.board = entity.NewBoard()
	that.turn = entity.MarkX
	that.state = StateAwaitingFirstMove
	that.outcome = entity.InProgress()
	that.applied = false
}

// AssignMark - records the mark this client plays in networked mode.
func (that *GameController) AssignMark(mark entity.Mark) error {
	if !mark.IsPlayer() {
		return fmt.Errorf("%w: %q", apperror.ErrInvalidMark, mark)
	}

	that.mark = mark

	return nil
}

// Play - applies a local move for the active mark and returns the resulting outcome.
func (that *GameController) Play(index int) (entity.Outcome, error) {
	if that.state == StateTerminal {
		return that.outcome, apperror.ErrGameFinished
	}

	if that.mode == ModeNetworked && that.turn != that.mark {
		return that.outcome, apperror.ErrNotYourTurn
	}

	return that.move(index, that.turn)
}

// ApplyRemote - applies the opponent's move relayed from the other client.
func (that *GameController) ApplyRemote(index int, mark entity.Mark) (entity.Outcome, error) {
	if that.state == StateTerminal {
		return that.outcome, fmt.Errorf("%w: match already over", apperror.ErrStaleMessage)
	}

	return that.move(index, mark)
}

func (that *GameController) move(index int, mark entity.Mark) (entity.Outcome, error) {
	board, err := that.board.Apply(index, mark)
	if err != nil {
		return that.outcome, fmt.Errorf("invalid turn: %w", err)
	}

	that.board = board
	that.presenter.BoardChanged(that.board)

	outcome := entity.Evaluate(that.board)
	if outcome.IsTerminal() {
		// locked before any confirmation so a pending round-trip can't be raced by another click
		that.state = StateTerminal
		that.outcome = outcome

		if that.mode == ModeOffline {
			that.Finalize(outcome)
		}

		return outcome, nil
	}

	that.state = StateInProgress
	that.turn = mark.Opponent()
	that.presenter.TurnChanged(that.turn)

	return outcome, nil
}

// Finalize - applies the authoritative outcome of the match. Only the first call per match counts,
// it reports whether this call was the one applied.
func (that *GameController) Finalize(outcome entity.Outcome) bool {
	if that.applied {
		return false
	}

	that.applied = true
	that.state = StateTerminal

	// keep the locally computed lines for highlighting when the relay agrees with us
	if !that.outcome.Equal(outcome) {
		that.outcome = outcome
	}

	that.score.Record(outcome)
	that.presenter.OutcomeFinal(that.outcome)

	return true
}

func (that *GameController) Board() entity.Board {
	return that.board
}

func (that *GameController) Turn() entity.Mark {
	return that.turn
}

func (that *GameController) State() State {
	return that.state
}

// Outcome - the locally evaluated outcome, or the authoritative one once finalized.
func (that *GameController) Outcome() entity.Outcome {
	return that.outcome
}

func (that *GameController) Score() entity.Score {
	return that.score
}

func (that *GameController) Mark() entity.Mark {
	return that.mark
}

func (that *GameController) IsFinalized() bool {
	return that.applied
}
