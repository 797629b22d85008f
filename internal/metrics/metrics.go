// Package metrics exposes Prometheus instruments for the alert engine.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the alert engine collectors.
type Metrics struct {
	registry *prometheus.Registry

	runs       *prometheus.CounterVec
	triggered  prometheus.Counter
	cleared    prometheus.Counter
	deliveries *prometheus.CounterVec
	orgErrors  prometheus.Counter
	duration   prometheus.Histogram
}

// New creates the collectors on a fresh registry, along with Go and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_alert_runs_total",
			Help: "Alert orchestration runs by final status.",
		}, []string{"status"}),
		triggered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_alert_rules_triggered_total",
			Help: "Alert rules that moved from armed to triggered.",
		}),
		cleared: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_alert_rules_cleared_total",
			Help: "Alert rules re-armed after spend fell below threshold.",
		}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pulse_notification_deliveries_total",
			Help: "Notification delivery attempts by channel and outcome.",
		}, []string{"channel", "status"}),
		orgErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pulse_alert_org_errors_total",
			Help: "Organizations whose evaluation failed during a run.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pulse_alert_run_duration_seconds",
			Help:    "Wall time of alert orchestration runs.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
	}
	reg.MustRegister(m.runs, m.triggered, m.cleared, m.deliveries, m.orgErrors, m.duration)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRun records a finished run.
func (m *Metrics) ObserveRun(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(status).Inc()
	m.duration.Observe(d.Seconds())
}

// AddTriggered counts rules that triggered.
func (m *Metrics) AddTriggered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.triggered.Add(float64(n))
}

// AddCleared counts rules that re-armed.
func (m *Metrics) AddCleared(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleared.Add(float64(n))
}

// IncDelivery counts one delivery outcome.
func (m *Metrics) IncDelivery(channel, status string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(channel, status).Inc()
}

// IncOrgError counts one failed organization.
func (m *Metrics) IncOrgError() {
	if m == nil {
		return
	}
	m.orgErrors.Inc()
}
