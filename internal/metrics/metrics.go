// Package metrics provides Prometheus metrics for the prediction
// engine: cycle counters, aggregation outcomes, per-strategy health,
// and persistence failures, exposed via the metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the engine.
type Metrics struct {
	PredictionCycles     prometheus.Counter     // Completed prediction cycles
	ConsensusAbstentions prometheus.Counter     // Cycles that ended in abstention
	StrategyFailures     *prometheus.CounterVec // Per-strategy unavailable errors
	StrategyTimeouts     prometheus.Counter     // Strategy calls cut off by timeout
	OutcomesRecorded     prometheus.Counter     // Outcome records persisted
	PersistFailures      prometheus.Counter     // Failed persistence attempts
	PredictionLatency    prometheus.Histogram   // End-to-end prediction cycle latency
	AggregateConfidence  prometheus.Histogram   // Distribution of consensus confidence
	StrategyWeight       *prometheus.GaugeVec   // Current adaptive weight per strategy
	ModelPredictions     prometheus.Counter     // Remote model predictions made
	ModelFailures        prometheus.Counter     // Remote model prediction failures
	FeedReconnects       prometheus.Counter     // Outcome feed reconnections
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for
// testing, so tests don't collide on the global registry).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		PredictionCycles: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_cycles_total",
			Help: "Total number of completed prediction cycles",
		}),
		ConsensusAbstentions: factory.NewCounter(prometheus.CounterOpts{
			Name: "consensus_abstentions_total",
			Help: "Total number of prediction cycles that ended in abstention",
		}),
		StrategyFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strategy_failures_total",
			Help: "Total number of per-strategy prediction failures",
		}, []string{"strategy"}),
		StrategyTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "strategy_timeouts_total",
			Help: "Total number of strategy calls that hit the fan-out timeout",
		}),
		OutcomesRecorded: factory.NewCounter(prometheus.CounterOpts{
			Name: "outcomes_recorded_total",
			Help: "Total number of outcome records persisted",
		}),
		PersistFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "persist_failures_total",
			Help: "Total number of failed persistence attempts",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "End-to-end prediction cycle latency in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		AggregateConfidence: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "aggregate_confidence",
			Help:    "Distribution of consensus confidence scores",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		StrategyWeight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "strategy_weight",
			Help: "Current adaptive weight per strategy",
		}, []string{"strategy"}),
		ModelPredictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_predictions_total",
			Help: "Total number of remote model predictions made",
		}),
		ModelFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_failures_total",
			Help: "Total number of remote model prediction failures",
		}),
		FeedReconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "feed_reconnects_total",
			Help: "Total number of outcome feed reconnections",
		}),
	}
}
