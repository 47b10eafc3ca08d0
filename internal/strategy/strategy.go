// Package strategy defines the capability contract every predictor
// implements, rule-based or learned, plus the built-in rule strategies.
package strategy

import (
	"context"
	"errors"
	"time"

	"ensemble-engine/internal/game"
)

// ErrUnavailable signals that a strategy could not produce a prediction
// for a well-formed window. Distinct from abstaining, which is a valid
// prediction with no label.
var ErrUnavailable = errors.New("strategy unavailable")

// Abstain is the label of a prediction that declines to pick an outcome.
const Abstain game.Outcome = ""

// Prediction is one strategy's answer for one window. Immutable once
// produced.
type Prediction struct {
	Strategy   string       `json:"strategy"`
	Label      game.Outcome `json:"label"`
	Confidence float64      `json:"confidence"`
	Ts         time.Time    `json:"ts"`
}

// Abstained reports whether the strategy declined to predict.
func (p Prediction) Abstained() bool {
	return p.Label == Abstain
}

// New builds a prediction stamped with the current time.
func New(name string, label game.Outcome, confidence float64) Prediction {
	return Prediction{Strategy: name, Label: label, Confidence: confidence, Ts: time.Now()}
}

// NewAbstention builds an explicit abstention.
func NewAbstention(name string) Prediction {
	return Prediction{Strategy: name, Ts: time.Now()}
}

// Strategy maps a window of recent outcomes to a prediction.
//
// Predict must not mutate the window and must return ErrUnavailable
// (or a wrapping error) on internal failure rather than a default or
// stale label. OnOutcome lets the strategy adapt internal state once
// the actual outcome is known; it must not block the resolution cycle.
type Strategy interface {
	Name() string
	Predict(ctx context.Context, w game.Window) (Prediction, error)
	OnOutcome(p Prediction, actual game.Outcome)
}

// Model is a learned strategy that carries training metadata surfaced
// in stats queries.
type Model interface {
	Strategy
	Trained() bool
	Version() string
}
