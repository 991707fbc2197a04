package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/agentic-hq/agentic/pkg/models"
)

// Metrics bundles the orchestrator's Prometheus collectors. Everything is
// registered on a private registry so concurrent orchestrators (and tests)
// never collide on the global default registry; pkg/api serves it under
// /metrics.
//
// Naming follows Prometheus conventions: agentic_ prefix, _total for
// counters, _seconds for duration histograms.
type Metrics struct {
	registry  *prometheus.Registry
	scenarios *prometheus.CounterVec
	sessions  prometheus.Histogram
	workers   prometheus.Gauge
}

// NewMetrics creates and registers the collector set.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		scenarios: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentic_scenarios_total",
				Help: "Scenario executions by terminal status.",
			},
			[]string{"status"},
		),
		sessions: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "agentic_session_duration_seconds",
				Help:    "Duration of orchestrator sessions in seconds.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
			},
		),
		workers: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "agentic_running_workers",
				Help: "Workers currently executing a scenario.",
			},
		),
	}
	m.registry.MustRegister(m.scenarios, m.sessions, m.workers)
	return m
}

// Registry exposes the private registry for the metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// The recorders below are nil-safe so an orchestrator wired without metrics
// costs nothing.

func (m *Metrics) scenarioDone(status models.Status) {
	if m == nil {
		return
	}
	m.scenarios.WithLabelValues(string(status)).Inc()
}

func (m *Metrics) sessionDone(d time.Duration) {
	if m == nil {
		return
	}
	m.sessions.Observe(d.Seconds())
}

func (m *Metrics) workerStarted() {
	if m == nil {
		return
	}
	m.workers.Inc()
}

func (m *Metrics) workerStopped() {
	if m == nil {
		return
	}
	m.workers.Dec()
}
