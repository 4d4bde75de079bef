// Package metrics provides centralized Prometheus metrics for the
// application, plus the append-only NDJSON run log that persists run
// outcomes across process restarts.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pipeline metrics track whole-run and per-step outcomes
var (
	// PipelineRunsTotal counts pipeline runs by result
	PipelineRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_runs_total",
			Help: "Total number of pipeline runs",
		},
		[]string{"result"}, // result: success, failure
	)

	// PipelineRunDuration measures whole-run duration in seconds
	PipelineRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pipeline_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	// StepExecutionsTotal counts step executions by step name and result
	StepExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pipeline_step_executions_total",
			Help: "Total number of pipeline step executions",
		},
		[]string{"step", "result"},
	)

	// StepDuration measures per-step duration in seconds
	StepDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pipeline_step_duration_seconds",
			Help:    "Pipeline step duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		},
		[]string{"step"},
	)
)

// Resilience metrics track classification, retries and fallbacks
var (
	// ErrorsClassifiedTotal counts classified errors by kind and severity
	ErrorsClassifiedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "errors_classified_total",
			Help: "Total number of classified errors",
		},
		[]string{"kind", "severity"},
	)

	// RetryAttemptsTotal counts retry attempts by kind and result
	RetryAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts",
		},
		[]string{"kind", "result"},
	)

	// FallbackDispatchesTotal counts fallback dispatches by kind
	FallbackDispatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_dispatches_total",
			Help: "Total number of fallback dispatches after retry exhaustion",
		},
		[]string{"kind"},
	)

	// LedgerRecordsOpen tracks unresolved ledger records by severity
	LedgerRecordsOpen = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ledger_records_open",
			Help: "Number of unresolved error records in the ledger",
		},
		[]string{"severity"},
	)

	// LedgerOperationDuration measures ledger persistence operation duration
	LedgerOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Ledger persistence operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)
)

// Production metrics track the content stages
var (
	// CandidatesFetchedTotal counts candidates fetched per source
	CandidatesFetchedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "candidates_fetched_total",
			Help: "Total number of story candidates fetched from sources",
		},
		[]string{"source"},
	)

	// SourceFetchErrors counts fetch errors per source
	SourceFetchErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "source_fetch_errors_total",
			Help: "Total number of source fetch errors",
		},
		[]string{"source", "error_type"},
	)

	// ScriptGenerationDuration measures time to generate the briefing script
	ScriptGenerationDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "script_generation_duration_seconds",
			Help:    "Time taken to generate the briefing script",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
		},
	)

	// SynthesisDuration measures time to synthesize audio
	SynthesisDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "synthesis_duration_seconds",
			Help:    "Time taken to synthesize briefing audio",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// SynthesisCostDollars accumulates estimated provider spend in USD
	SynthesisCostDollars = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "synthesis_cost_dollars_total",
			Help: "Estimated cumulative provider spend in USD",
		},
	)

	// BroadcastsTotal counts notification deliveries by channel and result
	BroadcastsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcasts_total",
			Help: "Total number of broadcast notification deliveries",
		},
		[]string{"channel", "result"},
	)

	// AdmissionDecisionsTotal counts admission gate decisions
	AdmissionDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "admission_decisions_total",
			Help: "Total number of admission gate decisions",
		},
		[]string{"decision"}, // decision: admitted, rejected_disabled, rejected_budget, rejected_rate
	)

	// ComparisonVariantsTotal counts comparison variant runs by result
	ComparisonVariantsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "comparison_variants_total",
			Help: "Total number of comparison variant runs",
		},
		[]string{"result"},
	)
)
