// Package tracker is the single owner of per-strategy weight and
// accuracy evolution. Pure bookkeeping, no I/O.
package tracker

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"ensemble-engine/internal/game"
	"ensemble-engine/internal/strategy"
)

// ErrUnknownStrategy is returned for names never registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Config bounds the weight curve. Weight is recomputed by exponential
// smoothing toward MinWeight + (MaxWeight-MinWeight)*accuracy, which is
// monotonic in accuracy and clamped to [MinWeight, MaxWeight].
type Config struct {
	DefaultWeight float64
	MinWeight     float64
	MaxWeight     float64
	Alpha         float64
}

// DefaultConfig matches the original engine's defaults.
func DefaultConfig() Config {
	return Config{DefaultWeight: 1.0, MinWeight: 0.1, MaxWeight: 2.0, Alpha: 0.3}
}

// Record is a read-only snapshot of one strategy's performance state.
type Record struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Total    int     `json:"totalPredictions"`
	Correct  int     `json:"correctPredictions"`
	Accuracy float64 `json:"accuracy"`
}

type entry struct {
	mu  sync.Mutex
	rec Record
}

// Tracker maintains one record per registered strategy. Updates are
// serialized per strategy name; reads see a fully-updated record.
type Tracker struct {
	cfg Config

	mu      sync.RWMutex
	entries map[string]*entry
}

func New(cfg Config) *Tracker {
	if cfg.MaxWeight <= cfg.MinWeight {
		cfg = DefaultConfig()
	}
	return &Tracker{cfg: cfg, entries: make(map[string]*entry)}
}

// Register creates a record with the default weight. Registering the
// same name twice is an error so two strategies can never share state.
func (t *Tracker) Register(name string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[name]; ok {
		return fmt.Errorf("strategy %q already registered", name)
	}
	t.entries[name] = &entry{rec: Record{Name: name, Weight: t.cfg.DefaultWeight}}
	return nil
}

func (t *Tracker) lookup(name string) (*entry, error) {
	t.mu.RLock()
	e, ok := t.entries[name]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, name)
	}
	return e, nil
}

// RecordOutcome updates the strategy's counters and weight from one
// resolved prediction. Abstentions are not prediction attempts: they
// leave both counters and the weight untouched.
func (t *Tracker) RecordOutcome(name string, p strategy.Prediction, actual game.Outcome) error {
	e, err := t.lookup(name)
	if err != nil {
		return err
	}
	if p.Abstained() {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rec.Total++
	if p.Label == actual {
		e.rec.Correct++
	}
	e.rec.Accuracy = float64(e.rec.Correct) / float64(e.rec.Total)
	e.rec.Weight = t.reweigh(e.rec.Weight, e.rec.Accuracy)

	log.Debug().
		Str("strategy", name).
		Float64("accuracy", e.rec.Accuracy).
		Float64("weight", e.rec.Weight).
		Int("total", e.rec.Total).
		Msg("strategy performance updated")
	return nil
}

// reweigh smooths the weight toward the accuracy-implied target and
// clamps it to the configured range.
func (t *Tracker) reweigh(current, accuracy float64) float64 {
	target := t.cfg.MinWeight + (t.cfg.MaxWeight-t.cfg.MinWeight)*accuracy
	w := (1-t.cfg.Alpha)*current + t.cfg.Alpha*target
	if w < t.cfg.MinWeight {
		w = t.cfg.MinWeight
	}
	if w > t.cfg.MaxWeight {
		w = t.cfg.MaxWeight
	}
	return w
}

// Snapshot returns a copy of the strategy's current record.
func (t *Tracker) Snapshot(name string) (Record, error) {
	e, err := t.lookup(name)
	if err != nil {
		return Record{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rec, nil
}

// Weight returns the current weight, falling back to the default for
// unknown names so aggregation never stalls on a race with
// registration.
func (t *Tracker) Weight(name string) float64 {
	rec, err := t.Snapshot(name)
	if err != nil {
		return t.cfg.DefaultWeight
	}
	return rec.Weight
}
