package strategy

import (
	"context"

	"ensemble-engine/internal/game"
)

// Frequency predicts the majority outcome of the window, with
// confidence proportional to the majority share. A flat distribution
// has no majority, so it abstains.
type Frequency struct {
	name string
}

func NewFrequency() *Frequency {
	return &Frequency{name: "frequency"}
}

func (f *Frequency) Name() string { return f.name }

func (f *Frequency) Predict(_ context.Context, w game.Window) (Prediction, error) {
	counts := w.Counts()

	var best game.Outcome
	bestCount := 0
	tied := false
	// Fixed iteration order keeps the abstention check deterministic.
	for _, o := range []game.Outcome{game.Player, game.Banker, game.Tie} {
		c := counts[o]
		if c > bestCount {
			best, bestCount, tied = o, c, false
		} else if c == bestCount && c > 0 {
			tied = true
		}
	}

	if tied || bestCount == 0 {
		return NewAbstention(f.name), nil
	}
	return New(f.name, best, float64(bestCount)/float64(len(w))), nil
}

func (f *Frequency) OnOutcome(Prediction, game.Outcome) {}
