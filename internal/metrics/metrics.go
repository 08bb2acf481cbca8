// Package metrics exposes interview and grading counters for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "interviewer"

// Collectors groups the engine metrics. A nil *Collectors is valid and records nothing.
type Collectors struct {
	TurnsTotal         *prometheus.CounterVec
	EscalationsTotal   *prometheus.CounterVec
	CapabilityCalls    *prometheus.CounterVec
	SpendTotal         *prometheus.CounterVec
	GradeDuration      prometheus.Histogram
	SessionsActive     prometheus.Gauge
	SessionsCompleted  *prometheus.CounterVec
	RepositoryFailures prometheus.Counter
}

// New registers the collectors with reg. Use prometheus.NewRegistry in tests.
func New(reg prometheus.Registerer) *Collectors {
	factory := promauto.With(reg)
	return &Collectors{
		TurnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "turns_total",
				Help:      "Recorded interview turns by phase and grading method",
			},
			[]string{"phase", "method"},
		),
		EscalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Premium re-grades by outcome",
			},
			[]string{"outcome"},
		),
		CapabilityCalls: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capability_calls_total",
				Help:      "Evaluation capability calls by tier and outcome",
			},
			[]string{"tier", "outcome"},
		),
		SpendTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "spend_total",
				Help:      "Accumulated grading cost by tier",
			},
			[]string{"tier"},
		),
		GradeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "grade_duration_seconds",
				Help:      "Time spent grading one answer",
				Buckets:   prometheus.DefBuckets,
			},
		),
		SessionsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_active",
				Help:      "Sessions started and not yet terminal",
			},
		),
		SessionsCompleted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "sessions_completed_total",
				Help:      "Terminal sessions by end reason",
			},
			[]string{"reason"},
		),
		RepositoryFailures: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repository_failures_total",
				Help:      "Repository writes that failed after retries",
			},
		),
	}
}

func (c *Collectors) Turn(phase, method string) {
	if c == nil {
		return
	}
	c.TurnsTotal.WithLabelValues(phase, method).Inc()
}

func (c *Collectors) Escalation(outcome string) {
	if c == nil {
		return
	}
	c.EscalationsTotal.WithLabelValues(outcome).Inc()
}

func (c *Collectors) CapabilityCall(tier, outcome string) {
	if c == nil {
		return
	}
	c.CapabilityCalls.WithLabelValues(tier, outcome).Inc()
}

func (c *Collectors) Spend(tier string, amount float64) {
	if c == nil || amount <= 0 {
		return
	}
	c.SpendTotal.WithLabelValues(tier).Add(amount)
}

func (c *Collectors) GradeTook(d time.Duration) {
	if c == nil {
		return
	}
	c.GradeDuration.Observe(d.Seconds())
}

func (c *Collectors) SessionStarted() {
	if c == nil {
		return
	}
	c.SessionsActive.Inc()
}

func (c *Collectors) SessionEnded(reason string) {
	if c == nil {
		return
	}
	c.SessionsActive.Dec()
	c.SessionsCompleted.WithLabelValues(reason).Inc()
}

func (c *Collectors) RepositoryFailure() {
	if c == nil {
		return
	}
	c.RepositoryFailures.Inc()
}
