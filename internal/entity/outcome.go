package entity

import (
	"errors"
	"fmt"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusWin        Status = "win"
	StatusDraw       Status = "draw"
)

// wireDraw is how a draw travels in the "outcome" field; wins travel as the winner's mark.
const wireDraw = "draw"

var ErrUnknownOutcome = errors.New("unknown outcome")

// Outcome is the result of evaluating a board.
// Lines holds every satisfied win line so all of them can be highlighted.
type Outcome struct {
	Status Status
	Winner Mark
	Lines  [][3]int
}

func InProgress() Outcome {
	return Outcome{Status: StatusInProgress}
}

func Win(mark Mark) Outcome {
	return Outcome{Status: StatusWin, Winner: mark}
}

func Draw() Outcome {
	return Outcome{Status: StatusDraw}
}

// Evaluate - scans the win lines in order. The first satisfied line decides the winner.
func Evaluate(board Board) Outcome {
	outcome := InProgress()

	for _, line := range WinLines {
		a, b, c := board[line[0]], board[line[1]], board[line[2]]
		if a == MarkEmpty || a != b || b != c {
			continue
		}

		if outcome.Status != StatusWin {
			outcome.Status = StatusWin
			outcome.Winner = a
		}

		outcome.Lines = append(outcome.Lines, line)
	}

	if outcome.Status == StatusWin {
		return outcome
	}

	// the game will continue until all the squares are full
	if board.IsFull() {
		return Draw()
	}

	return outcome
}

func (that Outcome) IsTerminal() bool {
	return that.Status == StatusWin || that.Status == StatusDraw
}

func (that Outcome) IsWin() bool {
	return that.Status == StatusWin
}

// Equal compares status and winner, ignoring highlighted lines.
func (that Outcome) Equal(other Outcome) bool {
	return that.Status == other.Status && that.Winner == other.Winner
}

func (that Outcome) String() string {
	switch that.Status {
	case StatusWin:
		return string(that.Winner)
	case StatusDraw:
		return wireDraw
	default:
		return string(StatusInProgress)
	}
}

// MarshalText - encodes a terminal outcome as "X", "O" or "draw".
func (that Outcome) MarshalText() ([]byte, error) {
	switch {
	case that.Status == StatusWin && that.Winner.IsPlayer():
		return []byte(that.Winner), nil
	case that.Status == StatusDraw:
		return []byte(wireDraw), nil
	default:
		return nil, fmt.Errorf("%w: %s/%q", ErrUnknownOutcome, that.Status, that.Winner)
	}
}

func (that *Outcome) UnmarshalText(text []byte) error {
	switch value := string(text); value {
	case string(MarkX), string(MarkO):
		*that = Win(Mark(value))
	case wireDraw:
		*that = Draw()
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOutcome, value)
	}

	return nil
}
