package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the assistant.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	DecisionsTotal      *prometheus.CounterVec
	EvaluationDuration  prometheus.Histogram
	ScorerFailures      *prometheus.CounterVec
	AggregationFailures prometheus.Counter
	IntentsTotal        *prometheus.CounterVec
	DispatchErrors      *prometheus.CounterVec
	FeedbackTotal       *prometheus.CounterVec
	ConfidenceThreshold prometheus.Gauge
	AutonomyEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		DecisionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_decisions_total",
				Help: "Decisions produced, by action and gate outcome",
			},
			[]string{"action", "outcome"},
		),
		EvaluationDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "mailpilot_evaluation_duration_seconds",
				Help:    "Time spent evaluating one message",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		ScorerFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_scorer_failures_total",
				Help: "Scorer calls replaced by a neutral vote",
			},
			[]string{"scorer", "reason"},
		),
		AggregationFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "mailpilot_aggregation_failures_total",
				Help: "Evaluations where every scorer failed",
			},
		),
		IntentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_intents_total",
				Help: "Classified intents",
			},
			[]string{"intent"},
		),
		DispatchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_dispatch_errors_total",
				Help: "Failed side-effecting actions",
			},
			[]string{"action"},
		),
		FeedbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mailpilot_feedback_total",
				Help: "Human feedback on decisions",
			},
			[]string{"action", "approved"},
		),
		ConfidenceThreshold: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailpilot_confidence_threshold",
				Help: "Current confidence threshold for autonomous execution",
			},
		),
		AutonomyEnabled: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mailpilot_autonomy_enabled",
				Help: "1 when autonomous execution is enabled",
			},
		),
	}
}

// ObserveDecision counts a gated decision
func (m *Metrics) ObserveDecision(action, outcome string) {
	if m == nil {
		return
	}
	m.DecisionsTotal.WithLabelValues(action, outcome).Inc()
}

// ObserveEvaluation records how long an evaluation took
func (m *Metrics) ObserveEvaluation(d time.Duration) {
	if m == nil {
		return
	}
	m.EvaluationDuration.Observe(d.Seconds())
}

// ScorerFailed counts a neutral substitution
func (m *Metrics) ScorerFailed(scorer, reason string) {
	if m == nil {
		return
	}
	m.ScorerFailures.WithLabelValues(scorer, reason).Inc()
}

// AggregationFailed counts a total ensemble failure
func (m *Metrics) AggregationFailed() {
	if m == nil {
		return
	}
	m.AggregationFailures.Inc()
}

// ObserveIntent counts a classification result
func (m *Metrics) ObserveIntent(intent string) {
	if m == nil {
		return
	}
	m.IntentsTotal.WithLabelValues(intent).Inc()
}

// DispatchFailed counts a failed side effect
func (m *Metrics) DispatchFailed(action string) {
	if m == nil {
		return
	}
	m.DispatchErrors.WithLabelValues(action).Inc()
}

// ObserveFeedback counts human feedback
func (m *Metrics) ObserveFeedback(action string, approved bool) {
	if m == nil {
		return
	}
	label := "false"
	if approved {
		label = "true"
	}
	m.FeedbackTotal.WithLabelValues(action, label).Inc()
}

// SetThreshold publishes the current threshold
func (m *Metrics) SetThreshold(v float64) {
	if m == nil {
		return
	}
	m.ConfidenceThreshold.Set(v)
}

// SetAutonomy publishes the autonomy flag
func (m *Metrics) SetAutonomy(enabled bool) {
	if m == nil {
		return
	}
	if enabled {
		m.AutonomyEnabled.Set(1)
		return
	}
	m.AutonomyEnabled.Set(0)
}
