package scrape

import (
	"fmt"
	"strconv"
)

// Outcome is a match result from one player's point of view.
type Outcome float64

const (
	Loss Outcome = 0
	Draw Outcome = 0.5
	Win  Outcome = 1
)

func (o Outcome) String() string {
	switch o {
	case Win:
		return "win"
	case Loss:
		return "loss"
	case Draw:
		return "draw"
	default:
		return fmt.Sprintf("Outcome(%s)", strconv.FormatFloat(float64(o), 'g', -1, 64))
	}
}

// Opposite is the same result seen from the other side of the board.
func (o Outcome) Opposite() Outcome {
	return 1 - o
}

// Consistent reports whether two outcomes of the same match, one per side,
// agree with each other.
func Consistent(self, opponent Outcome) bool {
	return self.Opposite() == opponent
}
