package strategy

import (
	"context"

	"ensemble-engine/internal/game"
)

// Streak predicts based on the trailing run of identical outcomes.
// In follow mode it rides the streak; in fade mode it bets against it.
// Ties never start a streak worth following, so they always abstain.
type Streak struct {
	name     string
	minRun   int
	maxConf  float64
	fade     bool
	confStep float64
}

func NewStreak(minRun int, fade bool) *Streak {
	if minRun < 2 {
		minRun = 2
	}
	name := "streak-follow"
	if fade {
		name = "streak-fade"
	}
	return &Streak{
		name:     name,
		minRun:   minRun,
		maxConf:  0.9,
		fade:     fade,
		confStep: 0.1,
	}
}

func (s *Streak) Name() string { return s.name }

func (s *Streak) Predict(_ context.Context, w game.Window) (Prediction, error) {
	last, run := w.Streak()
	if run < s.minRun || last == game.Tie {
		return NewAbstention(s.name), nil
	}

	conf := 0.5 + float64(run-s.minRun)*s.confStep
	if conf > s.maxConf {
		conf = s.maxConf
	}

	label := last
	if s.fade {
		if last == game.Player {
			label = game.Banker
		} else {
			label = game.Player
		}
	}
	return New(s.name, label, conf), nil
}

func (s *Streak) OnOutcome(Prediction, game.Outcome) {}
