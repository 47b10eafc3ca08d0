// Package engine coordinates the registered strategies, the learning
// model, the history store, and the performance tracker through two
// cycles: prediction (window → fan-out → consensus) and outcome
// resolution (persist → update trackers).
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ensemble-engine/internal/aggregate"
	"ensemble-engine/internal/game"
	"ensemble-engine/internal/strategy"
	"ensemble-engine/internal/tracker"
)

var (
	// ErrNoHistory means the store holds fewer outcomes than the
	// configured minimum window.
	ErrNoHistory = errors.New("not enough history for a prediction")
	// ErrHistoryUnavailable means no store is configured and the caller
	// supplied no window.
	ErrHistoryUnavailable = errors.New("history store not configured")
	// ErrInvalidOutcome means the outcome is not in the label set.
	ErrInvalidOutcome = errors.New("invalid outcome")
	// ErrInvalidWindow means a caller-supplied window failed validation.
	ErrInvalidWindow = errors.New("invalid window")
)

// HistoryStore is the narrow persistence contract the engine consumes.
type HistoryStore interface {
	AppendOutcome(rec game.Record) (uint64, error)
	FetchRecent(n int) ([]game.Record, error)
	AppendPredictionLog(c aggregate.Consensus, inputs []aggregate.Contribution) (uint64, error)
}

// Metrics is the subset of instrumentation the engine reports to.
type Metrics interface {
	PredictionCycleInc()
	AbstentionInc()
	StrategyFailureInc(name string)
	StrategyTimeoutInc()
	StrategyWeightSet(name string, weight float64)
	OutcomeRecordedInc()
	PersistFailureInc()
	LatencyObserve(seconds float64)
	ConfidenceObserve(v float64)
}

// Config carries the engine's tunables.
type Config struct {
	WindowSize      int           // max outcomes per window
	MinHistory      int           // minimum stored outcomes to predict from
	TieEpsilon      float64       // aggregation tie-break epsilon
	StrategyTimeout time.Duration // per-strategy fan-out timeout
	Tracker         tracker.Config
}

// DefaultConfig mirrors the original engine's window of 20 outcomes.
func DefaultConfig() Config {
	return Config{
		WindowSize:      20,
		MinHistory:      5,
		TieEpsilon:      aggregate.DefaultEpsilon,
		StrategyTimeout: 2 * time.Second,
		Tracker:         tracker.DefaultConfig(),
	}
}

// Stat is one row of an algorithm statistics query.
type Stat struct {
	Name     string  `json:"name"`
	Weight   float64 `json:"weight"`
	Accuracy float64 `json:"accuracy"`
	Total    int     `json:"totalPredictions"`
	Correct  int     `json:"correctPredictions"`
	Trained  bool    `json:"trained,omitempty"`
	Version  string  `json:"version,omitempty"`
}

// Engine owns the registration set and drives both cycles. All mutable
// strategy state lives in the tracker; the engine itself only guards
// the registration set and the pending predictions of the most recent
// cycle.
type Engine struct {
	cfg     Config
	store   HistoryStore
	tracker *tracker.Tracker
	metrics Metrics

	mu         sync.RWMutex
	strategies []strategy.Strategy
	model      strategy.Model
	pending    map[string]strategy.Prediction
	lastWindow game.Window
}

// New creates an engine. The store may be nil, in which case callers
// must supply windows and outcomes cannot be resolved.
func New(cfg Config, store HistoryStore, m Metrics) *Engine {
	if cfg.WindowSize <= 0 {
		cfg = DefaultConfig()
	}
	if m == nil {
		m = nopMetrics{}
	}
	return &Engine{
		cfg:     cfg,
		store:   store,
		tracker: tracker.New(cfg.Tracker),
		metrics: m,
		pending: make(map[string]strategy.Prediction),
	}
}

// RegisterStrategy adds a strategy to the ensemble. Names must be
// unique; a duplicate is rejected rather than silently replaced.
func (e *Engine) RegisterStrategy(s strategy.Strategy) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.tracker.Register(s.Name()); err != nil {
		return err
	}
	e.strategies = append(e.strategies, s)
	log.Info().Str("strategy", s.Name()).Msg("strategy registered")
	return nil
}

// SetModel installs the learning-model strategy. At most one model is
// active; installing a second is rejected.
func (e *Engine) SetModel(m strategy.Model) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.model != nil {
		return fmt.Errorf("model %q already set", e.model.Name())
	}
	if err := e.tracker.Register(m.Name()); err != nil {
		return err
	}
	e.model = m
	log.Info().Str("model", m.Name()).Str("version", m.Version()).Msg("learning model set")
	return nil
}

// Tracker exposes the performance tracker for stats queries and tests.
func (e *Engine) Tracker() *tracker.Tracker {
	return e.tracker
}

// PredictOptions controls one prediction cycle.
type PredictOptions struct {
	// Window, when non-empty, is used verbatim instead of fetching
	// from the store.
	Window game.Window
	// Persist logs the consensus to the store, best-effort.
	Persist bool
}

type fanOutResult struct {
	name string
	pred strategy.Prediction
	err  error
}

// Predict runs one prediction cycle and returns the consensus.
// Per-strategy failures are logged and excluded; the cycle only errors
// on missing history, an invalid supplied window, or cancellation.
func (e *Engine) Predict(ctx context.Context, opts PredictOptions) (aggregate.Consensus, error) {
	start := time.Now()

	window, err := e.buildWindow(opts.Window)
	if err != nil {
		return aggregate.Consensus{}, err
	}

	participants := e.participants()
	results := e.fanOut(ctx, participants, window)
	if ctx.Err() != nil {
		// Cancelled mid-flight: discard partial results, return nothing.
		return aggregate.Consensus{}, ctx.Err()
	}

	inputs := make([]aggregate.Input, 0, len(results))
	preds := make(map[string]strategy.Prediction, len(results))
	for _, r := range results {
		if r.err != nil {
			e.metrics.StrategyFailureInc(r.name)
			log.Warn().Err(r.err).Str("strategy", r.name).Msg("strategy unavailable, excluded from aggregation")
			continue
		}
		preds[r.name] = r.pred
		inputs = append(inputs, aggregate.Input{
			Prediction: r.pred,
			Weight:     e.tracker.Weight(r.name),
		})
	}

	consensus := aggregate.Merge(inputs, e.cfg.TieEpsilon)

	e.mu.Lock()
	e.pending = preds
	e.lastWindow = window
	e.mu.Unlock()

	if consensus.Abstained() {
		e.metrics.AbstentionInc()
	}
	e.metrics.PredictionCycleInc()
	e.metrics.ConfidenceObserve(consensus.Confidence)
	e.metrics.LatencyObserve(time.Since(start).Seconds())

	if opts.Persist && e.store != nil {
		if _, err := e.store.AppendPredictionLog(consensus, consensus.Contributions); err != nil {
			// The consensus is already computed and still useful; the
			// log write is best-effort.
			e.metrics.PersistFailureInc()
			log.Warn().Err(err).Msg("prediction log write failed")
		}
	}

	log.Debug().
		Str("label", string(consensus.Label)).
		Float64("confidence", consensus.Confidence).
		Int("participants", len(inputs)).
		Msg("prediction cycle complete")
	return consensus, nil
}

func (e *Engine) buildWindow(supplied game.Window) (game.Window, error) {
	if len(supplied) > 0 {
		if !supplied.Valid(e.cfg.WindowSize) {
			return nil, ErrInvalidWindow
		}
		return supplied, nil
	}
	if e.store == nil {
		return nil, ErrHistoryUnavailable
	}

	records, err := e.store.FetchRecent(e.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}
	if len(records) < e.cfg.MinHistory {
		return nil, fmt.Errorf("%w: have %d, need %d", ErrNoHistory, len(records), e.cfg.MinHistory)
	}

	// Records arrive most-recent-first; reverse to chronological order.
	window := make(game.Window, len(records))
	for i, rec := range records {
		window[len(records)-1-i] = rec.Outcome
	}
	return window, nil
}

func (e *Engine) participants() []strategy.Strategy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]strategy.Strategy, len(e.strategies), len(e.strategies)+1)
	copy(out, e.strategies)
	if e.model != nil {
		out = append(out, e.model)
	}
	return out
}

// fanOut invokes every participant concurrently over the same window
// and collects all results. A strategy that outlives the per-strategy
// timeout is converted to an unavailable result instead of stalling
// the cycle.
func (e *Engine) fanOut(ctx context.Context, participants []strategy.Strategy, window game.Window) []fanOutResult {
	results := make([]fanOutResult, len(participants))
	var wg sync.WaitGroup

	for i, s := range participants {
		wg.Add(1)
		go func(i int, s strategy.Strategy) {
			defer wg.Done()
			results[i] = e.predictOne(ctx, s, window)
		}(i, s)
	}
	wg.Wait()
	return results
}

func (e *Engine) predictOne(ctx context.Context, s strategy.Strategy, window game.Window) fanOutResult {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.StrategyTimeout)
	defer cancel()

	done := make(chan fanOutResult, 1)
	go func() {
		pred, err := s.Predict(callCtx, window)
		done <- fanOutResult{name: s.Name(), pred: pred, err: err}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			r.err = fmt.Errorf("%w: %s: %v", strategy.ErrUnavailable, s.Name(), r.err)
		}
		return r
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			e.metrics.StrategyTimeoutInc()
		}
		return fanOutResult{
			name: s.Name(),
			err:  fmt.Errorf("%w: %s: %v", strategy.ErrUnavailable, s.Name(), callCtx.Err()),
		}
	}
}

// ResolveOutcome records the actual outcome and updates every strategy
// that predicted in the most recent cycle. The outcome write is the
// authoritative record: if it fails, no tracker state is touched so
// durable history and in-memory weights never diverge.
func (e *Engine) ResolveOutcome(ctx context.Context, actual game.Outcome, sessionID string) (uint64, error) {
	if !actual.Valid() {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOutcome, actual)
	}
	if e.store == nil {
		return 0, ErrHistoryUnavailable
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	pending := e.pending
	prevPattern := e.lastWindow
	e.pending = make(map[string]strategy.Prediction)
	e.lastWindow = nil
	e.mu.Unlock()

	id, err := e.store.AppendOutcome(game.Record{
		Outcome:     actual,
		Ts:          time.Now(),
		SessionID:   sessionID,
		PrevPattern: prevPattern,
	})
	if err != nil {
		e.metrics.PersistFailureInc()
		// Put the predictions back so a retried resolution still
		// settles them.
		e.mu.Lock()
		e.pending = pending
		e.lastWindow = prevPattern
		e.mu.Unlock()
		return 0, fmt.Errorf("persist outcome: %w", err)
	}
	e.metrics.OutcomeRecordedInc()

	for _, s := range e.participants() {
		pred, ok := pending[s.Name()]
		if !ok {
			// Registered after the prediction cycle ran; nothing to
			// settle this round.
			continue
		}
		s.OnOutcome(pred, actual)
		if err := e.tracker.RecordOutcome(s.Name(), pred, actual); err != nil {
			log.Warn().Err(err).Str("strategy", s.Name()).Msg("tracker update failed")
			continue
		}
		if rec, err := e.tracker.Snapshot(s.Name()); err == nil {
			e.metrics.StrategyWeightSet(s.Name(), rec.Weight)
		}
	}

	log.Info().
		Uint64("recordId", id).
		Str("outcome", string(actual)).
		Str("session", sessionID).
		Msg("outcome recorded")
	return id, nil
}

// AlgorithmStats returns current performance for every registered
// strategy plus the learning model when it reports itself trained.
// Values are read from the tracker at call time.
func (e *Engine) AlgorithmStats() []Stat {
	e.mu.RLock()
	strategies := make([]strategy.Strategy, len(e.strategies))
	copy(strategies, e.strategies)
	model := e.model
	e.mu.RUnlock()

	stats := make([]Stat, 0, len(strategies)+1)
	for _, s := range strategies {
		rec, err := e.tracker.Snapshot(s.Name())
		if err != nil {
			continue
		}
		stats = append(stats, statFromRecord(rec))
	}
	if model != nil && model.Trained() {
		rec, err := e.tracker.Snapshot(model.Name())
		if err == nil {
			st := statFromRecord(rec)
			st.Trained = true
			st.Version = model.Version()
			stats = append(stats, st)
		}
	}
	return stats
}

func statFromRecord(rec tracker.Record) Stat {
	return Stat{
		Name:     rec.Name,
		Weight:   rec.Weight,
		Accuracy: rec.Accuracy,
		Total:    rec.Total,
		Correct:  rec.Correct,
	}
}

type nopMetrics struct{}

func (nopMetrics) PredictionCycleInc()               {}
func (nopMetrics) AbstentionInc()                    {}
func (nopMetrics) StrategyFailureInc(string)         {}
func (nopMetrics) StrategyTimeoutInc()               {}
func (nopMetrics) StrategyWeightSet(string, float64) {}
func (nopMetrics) OutcomeRecordedInc()               {}
func (nopMetrics) PersistFailureInc()                {}
func (nopMetrics) LatencyObserve(float64)            {}
func (nopMetrics) ConfidenceObserve(float64)         {}
