package entity

// Score counts wins per mark. Draws change nothing.
type Score struct {
	X int `json:"x"`
	O int `json:"o"`
}

func (that *Score) Record(outcome Outcome) {
	if !outcome.IsWin() {
		return
	}

	switch outcome.Winner {
	case MarkX:
		that.X++
	case MarkO:
		that.O++
	}
}

func (that Score) Of(mark Mark) int {
	switch mark {
	case MarkX:
		return that.X
	case MarkO:
		return that.O
	default:
		return 0
	}
}
