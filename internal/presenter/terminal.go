package presenter

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/muesli/termenv"

	"github.com/rocketscienceinc/tictactoe-relay/internal/entity"
)

const (
	colorX    = "#E06C75"
	colorO    = "#61AFEF"
	colorHint = "#5C6370"
	colorWin  = "#E5C07B"
)

// Terminal renders the game as text. Empty cells show their index so players know what to type.
type Terminal struct {
	mu     sync.Mutex
	output *termenv.Output

	board entity.Board
}

func NewTerminal(w io.Writer, opts ...termenv.OutputOption) *Terminal {
	return &Terminal{
		output: termenv.NewOutput(w, opts...),
		board:  entity.NewBoard(),
	}
}

func (that *Terminal) BoardChanged(board entity.Board) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.board = board
	that.render(nil)
}

func (that *Terminal) TurnChanged(mark entity.Mark) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.println(fmt.Sprintf("Player %s's Turn", that.mark(mark)))
}

func (that *Terminal) OutcomeFinal(outcome entity.Outcome) {
	that.mu.Lock()
	defer that.mu.Unlock()

	if outcome.IsWin() {
		that.render(outcome.Lines)
		that.println(that.output.String(fmt.Sprintf("Player %s Wins!", outcome.Winner)).Bold().String())
		return
	}

	that.println(that.output.String("It's a Draw!").Bold().String())
}

func (that *Terminal) WaitingStatus(message string) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.println(message)
}

// Score - prints the running score.
func (that *Terminal) Score(score entity.Score) {
	that.mu.Lock()
	defer that.mu.Unlock()

	that.println(fmt.Sprintf("Player X: %d  Player O: %d", score.X, score.O))
}

func (that *Terminal) render(lines [][3]int) {
	winning := make(map[int]bool)
	for _, line := range lines {
		for _, index := range line {
			winning[index] = true
		}
	}

	var sb strings.Builder
	for row := 0; row < 3; row++ {
		if row > 0 {
			sb.WriteString("---+---+---\n")
		}

		cells := make([]string, 3)
		for col := 0; col < 3; col++ {
			index := row*3 + col
			cells[col] = " " + that.cell(index, winning[index]) + " "
		}

		sb.WriteString(strings.Join(cells, "|"))
		sb.WriteString("\n")
	}

	_, _ = io.WriteString(that.output, sb.String())
}

func (that *Terminal) cell(index int, winning bool) string {
	mark := that.board[index]
	if mark == entity.MarkEmpty {
		return that.output.String(strconv.Itoa(index)).Foreground(that.output.Color(colorHint)).String()
	}

	if winning {
		return that.output.String(string(mark)).Foreground(that.output.Color(colorWin)).Bold().String()
	}

	return that.mark(mark)
}

func (that *Terminal) mark(mark entity.Mark) string {
	color := colorX
	if mark == entity.MarkO {
		color = colorO
	}

	return that.output.String(string(mark)).Foreground(that.output.Color(color)).String()
}

func (that *Terminal) println(line string) {
	_, _ = io.WriteString(that.output, line+"\n")
}
