package metrics

// Wrapper gives the engine, model client, and feed a flat method set
// over the Prometheus types so they can declare small local interfaces
// instead of importing prometheus directly.
type Wrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *Wrapper {
	return &Wrapper{m: m}
}

func (w *Wrapper) PredictionCycleInc() { w.m.PredictionCycles.Inc() }
func (w *Wrapper) AbstentionInc()      { w.m.ConsensusAbstentions.Inc() }
func (w *Wrapper) StrategyTimeoutInc() { w.m.StrategyTimeouts.Inc() }
func (w *Wrapper) OutcomeRecordedInc() { w.m.OutcomesRecorded.Inc() }
func (w *Wrapper) PersistFailureInc()  { w.m.PersistFailures.Inc() }
func (w *Wrapper) ModelPredictionInc() { w.m.ModelPredictions.Inc() }
func (w *Wrapper) ModelFailureInc()    { w.m.ModelFailures.Inc() }
func (w *Wrapper) FeedReconnectInc()   { w.m.FeedReconnects.Inc() }

func (w *Wrapper) LatencyObserve(s float64) {
	w.m.PredictionLatency.Observe(s)
}

func (w *Wrapper) ConfidenceObserve(v float64) {
	w.m.AggregateConfidence.Observe(v)
}

func (w *Wrapper) StrategyFailureInc(name string) {
	w.m.StrategyFailures.WithLabelValues(name).Inc()
}

func (w *Wrapper) StrategyWeightSet(name string, weight float64) {
	w.m.StrategyWeight.WithLabelValues(name).Set(weight)
}
