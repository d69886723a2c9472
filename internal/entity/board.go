package entity

import (
	"fmt"
	"strings"

	"github.com/rocketscienceinc/tictactoe-relay/internal/apperror"
)

// Mark is the content of a cell and the symbol a player plays with.
type Mark string

const (
	MarkEmpty Mark = ""
	MarkX     Mark = "X"
	MarkO     Mark = "O"
)

const BoardSize = 9

// WinLines are scanned in this order: rows, columns, diagonals.
var WinLines = [8][3]int{
	{0, 1, 2},
	{3, 4, 5},
	{6, 7, 8},
	{0, 3, 6},
	{1, 4, 7},
	{2, 5, 8},
	{0, 4, 8},
	{2, 4, 6},
}

// IsPlayer reports whether the mark is X or O.
func (that Mark) IsPlayer() bool {
	return that == MarkX || that == MarkO
}

// Opponent - returns the other player's mark.
func (that Mark) Opponent() Mark {
	switch that {
	case MarkX:
		return MarkO
	case MarkO:
		return MarkX
	default:
		return MarkEmpty
	}
}

// Board is a 3x3 grid, row-major.
type Board [BoardSize]Mark

// NewBoard - returns a fresh all-empty board.
func NewBoard() Board {
	return Board{}
}

// Apply - returns a copy of the board with mark placed on index. The receiver is left untouched.
func (that Board) Apply(index int, mark Mark) (Board, error) {
	if index < 0 || index >= BoardSize {
		return that, fmt.Errorf("%w: cell %d", apperror.ErrInvalidCell, index)
	}

	if !mark.IsPlayer() {
		return that, fmt.Errorf("%w: %q", apperror.ErrInvalidMark, mark)
	}

	if that[index] != MarkEmpty {
		return that, fmt.Errorf("%w: cell %d", apperror.ErrCellOccupied, index)
	}

	that[index] = mark

	return that, nil
}

func (that Board) IsFull() bool {
	for _, cell := range that {
		if cell == MarkEmpty {
			return false
		}
	}

	return true
}

func (that Board) String() string {
	var sb strings.Builder

	for i, cell := range that {
		if cell == MarkEmpty {
			sb.WriteByte('_')
		} else {
			sb.WriteString(string(cell))
		}

		if i%3 == 2 && i != BoardSize-1 {
			sb.WriteByte('/')
		}
	}

	return sb.String()
}
