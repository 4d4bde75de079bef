package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics covers the scheduler loop: job outcomes, durations, and the
// fail-open configuration state. Pipeline-level metrics live in
// internal/observability/metrics.
type Metrics struct {
	ScheduledRunsTotal   *prometheus.CounterVec
	ScheduledRunSeconds  prometheus.Histogram
	LastSuccessTimestamp prometheus.Gauge
	LedgerPrunedTotal    prometheus.Counter

	ConfigLoadTimestamp         prometheus.Gauge
	ConfigValidationErrorsTotal *prometheus.CounterVec
	ConfigFallbackActive        prometheus.Gauge
}

// NewMetrics creates and registers the worker metrics via promauto.
func NewMetrics() *Metrics {
	return &Metrics{
		ScheduledRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_scheduled_runs_total",
			Help: "Total scheduled production runs by status (success/failure/skipped)",
		}, []string{"status"}),

		ScheduledRunSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "worker_scheduled_run_seconds",
			Help:    "Duration of scheduled production runs in seconds",
			Buckets: []float64{1, 5, 30, 60, 300, 900, 1800},
		}),

		LastSuccessTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_last_success_timestamp",
			Help: "Unix timestamp of the last successful scheduled run",
		}),

		LedgerPrunedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "worker_ledger_pruned_total",
			Help: "Total resolved ledger records removed by housekeeping",
		}),

		ConfigLoadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_config_load_timestamp",
			Help: "Unix timestamp of the last worker configuration load",
		}),

		ConfigValidationErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "worker_config_validation_errors_total",
			Help: "Total worker configuration validation failures by field",
		}, []string{"field"}),

		ConfigFallbackActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "worker_config_fallback_active",
			Help: "1 when any worker configuration fallback is active",
		}),
	}
}

// RecordRun increments the run counter for status "success", "failure",
// or "skipped".
func (m *Metrics) RecordRun(status string) {
	m.ScheduledRunsTotal.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordRunDuration(seconds float64) {
	m.ScheduledRunSeconds.Observe(seconds)
}

func (m *Metrics) RecordLastSuccess() {
	m.LastSuccessTimestamp.SetToCurrentTime()
}

func (m *Metrics) RecordPruned(count int) {
	m.LedgerPrunedTotal.Add(float64(count))
}

func (m *Metrics) RecordValidationError(field string) {
	m.ConfigValidationErrorsTotal.WithLabelValues(field).Inc()
}

func (m *Metrics) SetFallbackActive(active bool) {
	if active {
		m.ConfigFallbackActive.Set(1)
	} else {
		m.ConfigFallbackActive.Set(0)
	}
}

func (m *Metrics) RecordConfigLoad() {
	m.ConfigLoadTimestamp.SetToCurrentTime()
}
