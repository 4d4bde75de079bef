package metrics

import (
	"time"
)

func resultLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}

// RecordPipelineRun records the outcome and duration of one pipeline run.
func RecordPipelineRun(success bool, duration time.Duration) {
	PipelineRunsTotal.WithLabelValues(resultLabel(success)).Inc()
	PipelineRunDuration.Observe(duration.Seconds())
}

// RecordStep records one step execution.
func RecordStep(step string, success bool, duration time.Duration) {
	StepExecutionsTotal.WithLabelValues(step, resultLabel(success)).Inc()
	StepDuration.WithLabelValues(step).Observe(duration.Seconds())
}

// RecordErrorClassified records one classified error.
func RecordErrorClassified(kind, severity string) {
	ErrorsClassifiedTotal.WithLabelValues(kind, severity).Inc()
}

// RecordRetryAttempt records one retry attempt for an error kind.
func RecordRetryAttempt(kind string, success bool) {
	RetryAttemptsTotal.WithLabelValues(kind, resultLabel(success)).Inc()
}

// RecordFallbackDispatch records one fallback dispatch after exhaustion.
func RecordFallbackDispatch(kind string) {
	FallbackDispatchesTotal.WithLabelValues(kind).Inc()
}

// UpdateLedgerOpen updates the gauge of unresolved records for a severity.
func UpdateLedgerOpen(severity string, count int) {
	LedgerRecordsOpen.WithLabelValues(severity).Set(float64(count))
}

// RecordLedgerOperation records the duration of a ledger persistence
// operation such as "upsert", "load" or "prune".
func RecordLedgerOperation(operation string, duration time.Duration) {
	LedgerOperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordCandidatesFetched records candidates fetched from one source.
func RecordCandidatesFetched(source string, count int) {
	CandidatesFetchedTotal.WithLabelValues(source).Add(float64(count))
}

// RecordSourceFetchError records a fetch error for one source.
func RecordSourceFetchError(source, errorType string) {
	SourceFetchErrors.WithLabelValues(source, errorType).Inc()
}

// RecordScriptGeneration records the time taken to generate a script.
func RecordScriptGeneration(duration time.Duration) {
	ScriptGenerationDuration.Observe(duration.Seconds())
}

// RecordSynthesis records the time and estimated cost of audio synthesis.
func RecordSynthesis(duration time.Duration, costDollars float64) {
	SynthesisDuration.Observe(duration.Seconds())
	if costDollars > 0 {
		SynthesisCostDollars.Add(costDollars)
	}
}

// RecordBroadcast records one notification delivery.
func RecordBroadcast(channel string, success bool) {
	BroadcastsTotal.WithLabelValues(channel, resultLabel(success)).Inc()
}

// RecordAdmission records one admission gate decision. The decision label
// is "admitted" or a rejected_* reason.
func RecordAdmission(decision string) {
	AdmissionDecisionsTotal.WithLabelValues(decision).Inc()
}

// RecordComparisonVariant records one comparison variant run.
func RecordComparisonVariant(success bool) {
	ComparisonVariantsTotal.WithLabelValues(resultLabel(success)).Inc()
}
