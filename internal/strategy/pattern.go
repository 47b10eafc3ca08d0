package strategy

import (
	"context"

	"ensemble-engine/internal/game"
)

// Pattern looks for earlier occurrences of the trailing k outcomes and
// predicts the successor seen most often after them. Abstains when the
// trailing pattern never recurred in the window.
type Pattern struct {
	name   string
	length int
}

func NewPattern(length int) *Pattern {
	if length < 2 {
		length = 2
	}
	return &Pattern{name: "pattern", length: length}
}

func (p *Pattern) Name() string { return p.name }

func (p *Pattern) Predict(_ context.Context, w game.Window) (Prediction, error) {
	if len(w) <= p.length {
		return NewAbstention(p.name), nil
	}

	tail := w[len(w)-p.length:]
	successors := make(map[game.Outcome]int, 3)
	matches := 0
	for i := 0; i+p.length < len(w); i++ {
		if !equal(w[i:i+p.length], tail) {
			continue
		}
		successors[w[i+p.length]]++
		matches++
	}
	if matches == 0 {
		return NewAbstention(p.name), nil
	}

	var best game.Outcome
	bestCount := 0
	tied := false
	for _, o := range []game.Outcome{game.Player, game.Banker, game.Tie} {
		c := successors[o]
		if c > bestCount {
			best, bestCount, tied = o, c, false
		} else if c == bestCount && c > 0 {
			tied = true
		}
	}
	if tied {
		return NewAbstention(p.name), nil
	}
	return New(p.name, best, float64(bestCount)/float64(matches)), nil
}

func (p *Pattern) OnOutcome(Prediction, game.Outcome) {}

func equal(a, b game.Window) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
