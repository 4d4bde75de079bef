// Package produce orchestrates one briefing production run: admission,
// pipeline execution, error classification, ledger-tracked retries, and
// the durable run log.
package produce

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"briefcast/internal/admission"
	"briefcast/internal/compare"
	"briefcast/internal/config"
	"briefcast/internal/ledger"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/pipeline"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
)

// RunnerFactory builds a pipeline runner for a configuration. Variants
// under comparison get their own runner built from their own config.
type RunnerFactory func(cfg *config.Workflow) *pipeline.Runner

// Service drives production runs end to end.
type Service struct {
	cfg              *config.Workflow
	gate             *admission.Gate
	newRunner        RunnerFactory
	newVariantRunner RunnerFactory
	classifier       *classify.Classifier
	scheduler        *retry.Scheduler
	ledger           ledger.Ledger
	runLog           *metrics.RunLog
	now              func() time.Time
}

// Option adjusts a Service.
type Option func(*Service)

// WithVariantRunner sets a separate runner factory for comparison
// variants, typically a narrowed step chain that stops after composing so
// a comparison cannot publish episodes or spend on synthesis. Without it,
// variants run the full chain.
func WithVariantRunner(f RunnerFactory) Option {
	return func(s *Service) { s.newVariantRunner = f }
}

// NewService creates the production service. scheduler may be nil to
// disable ledger-tracked retries (used by comparison variants).
func NewService(
	cfg *config.Workflow,
	gate *admission.Gate,
	newRunner RunnerFactory,
	classifier *classify.Classifier,
	scheduler *retry.Scheduler,
	led ledger.Ledger,
	runLog *metrics.RunLog,
	opts ...Option,
) *Service {
	s := &Service{
		cfg:              cfg,
		gate:             gate,
		newRunner:        newRunner,
		newVariantRunner: newRunner,
		classifier:       classifier,
		scheduler:        scheduler,
		ledger:           led,
		runLog:           runLog,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes one production run. A failed run is classified and, when
// its policy allows, retried as a whole under the scheduler: every step
// re-executes from the start, which the steps support by overwriting
// their shared-context keys. The run record is appended to the run log
// regardless of outcome.
func (s *Service) Run(ctx context.Context) (*pipeline.WorkflowResult, error) {
	if err := s.admit(); err != nil {
		return nil, err
	}

	runID := uuid.New().String()
	slog.Info("production run starting",
		slog.String("run_id", runID),
		slog.Bool("dry_run", s.cfg.DryRun))

	result, runErr := s.attempt(ctx)

	if runErr != nil && s.scheduler != nil {
		result, runErr = s.retryRun(ctx, result, runErr)
	}

	s.appendRunRecord(runID, result)
	s.updateLedgerGauges(ctx)

	if runErr != nil {
		return result, fmt.Errorf("production run failed: %w", runErr)
	}
	return result, nil
}

// admit checks the admission gate. A dry run ignores a budget rejection
// since it will not spend.
func (s *Service) admit() error {
	decision, err := s.gate.Admit()
	if err == nil {
		return nil
	}
	if s.cfg.DryRun && decision == admission.RejectedBudget {
		slog.Warn("budget exhausted, admitting dry run anyway")
		return nil
	}
	return err
}

// attempt runs the pipeline once and records any spend it incurred.
func (s *Service) attempt(ctx context.Context) (*pipeline.WorkflowResult, error) {
	runner := s.newRunner(s.cfg)
	result, err := runner.Run(ctx, s.cfg)
	if result != nil && !s.cfg.DryRun {
		if cost := totalCost(result); cost > 0 {
			if spendErr := s.gate.RecordSpend(cost); spendErr != nil {
				slog.Warn("failed to record spend", slog.Any("error", spendErr))
			}
		}
	}
	return result, err
}

// retryRun classifies the failure, opens a ledger record, and drives it
// through the scheduler by re-running the whole pipeline per attempt.
func (s *Service) retryRun(ctx context.Context, result *pipeline.WorkflowResult, runErr error) (*pipeline.WorkflowResult, error) {
	verdict := s.classifier.Classify(runErr, "")
	metrics.RecordErrorClassified(string(verdict.Kind), string(verdict.Policy.Severity))

	record := retry.NewRecord(verdict, s.now())
	if s.ledger != nil {
		if err := s.ledger.Upsert(ctx, record); err != nil {
			slog.Warn("failed to open ledger record", slog.Any("error", err))
		}
	}

	slog.Warn("run failed, entering retry",
		slog.String("record_id", record.ID()),
		slog.String("kind", string(verdict.Kind)),
		slog.Int("max_retries", record.MaxRetries),
		slog.Any("error", runErr))

	latest := result
	finalErr := s.scheduler.Run(ctx, record, func(ctx context.Context) error {
		attemptResult, err := s.attempt(ctx)
		if attemptResult != nil {
			latest = attemptResult
		}
		metrics.RecordRetryAttempt(string(record.Kind), err == nil)
		return err
	})

	if finalErr == nil && record.Resolved {
		return latest, nil
	}
	if finalErr == nil {
		// Policy allowed no retries at all (e.g. authentication errors):
		// the original failure stands.
		finalErr = runErr
	}
	return latest, finalErr
}

func (s *Service) appendRunRecord(runID string, result *pipeline.WorkflowResult) {
	if s.runLog == nil || result == nil {
		return
	}

	rec := metrics.RunRecord{
		RunID:       runID,
		StartedAt:   result.StartedAt,
		FinishedAt:  result.FinishedAt,
		Success:     result.Success,
		DryRun:      s.cfg.DryRun,
		ItemCount:   intMetadata(result, "stories_selected"),
		CostDollars: totalCost(result),
		StepSeconds: make(map[string]float64, len(result.StepTimings)),
	}
	for step, d := range result.StepTimings {
		rec.StepSeconds[step] = d.Seconds()
	}
	for _, stepErr := range result.Errors {
		rec.Errors = append(rec.Errors, stepErr.Error())
	}

	if err := s.runLog.Append(rec); err != nil {
		slog.Warn("failed to append run record", slog.Any("error", err))
	}
}

func (s *Service) updateLedgerGauges(ctx context.Context) {
	if s.ledger == nil {
		return
	}
	records, err := s.ledger.Load(ctx)
	if err != nil {
		slog.Warn("failed to load ledger for gauges", slog.Any("error", err))
		return
	}
	open := make(map[string]int)
	for _, r := range records {
		if !r.Resolved {
			open[string(r.Severity)]++
		}
	}
	for _, severity := range classify.Severities() {
		metrics.UpdateLedgerOpen(string(severity), open[string(severity)])
	}
}

// Outcome converts a finished run into a comparison outcome.
func Outcome(result *pipeline.WorkflowResult) compare.Outcome {
	return compare.Outcome{
		Quality:     floatMetadata(result, "selection_score_total"),
		CostDollars: totalCost(result),
		ItemCount:   intMetadata(result, "stories_selected"),
	}
}

// RunVariant executes one comparison variant: a single run of the variant
// chain with no ledger-tracked retry, sharing the service's admission gate
// for spend accounting.
func (s *Service) RunVariant(ctx context.Context, v compare.Variant) (compare.Outcome, error) {
	runner := s.newVariantRunner(v.Config)
	result, err := runner.Run(ctx, v.Config)
	if result != nil && !v.Config.DryRun {
		if cost := totalCost(result); cost > 0 {
			if spendErr := s.gate.RecordSpend(cost); spendErr != nil {
				slog.Warn("failed to record variant spend", slog.Any("error", spendErr))
			}
		}
	}
	if err != nil {
		return compare.Outcome{}, err
	}
	return Outcome(result), nil
}

// PruneLedger removes resolved ledger records older than olderThan and
// returns how many were deleted.
func (s *Service) PruneLedger(ctx context.Context, olderThan time.Duration) (int, error) {
	if s.ledger == nil {
		return 0, nil
	}
	return s.ledger.Prune(ctx, olderThan)
}

// IsRejection reports whether err is an admission rejection rather than a
// pipeline failure.
func IsRejection(err error) bool {
	return errors.Is(err, admission.ErrNotAdmitted)
}

func totalCost(result *pipeline.WorkflowResult) float64 {
	return floatMetadata(result, "script_cost_dollars") + floatMetadata(result, "audio_cost_dollars")
}

func floatMetadata(result *pipeline.WorkflowResult, key string) float64 {
	if result == nil {
		return 0
	}
	if v, ok := result.Metadata[key].(float64); ok {
		return v
	}
	return 0
}

func intMetadata(result *pipeline.WorkflowResult, key string) int {
	if result == nil {
		return 0
	}
	if v, ok := result.Metadata[key].(int); ok {
		return v
	}
	return 0
}
