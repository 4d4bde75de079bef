package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"briefcast/internal/config"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/observability/tracing"
)

// Runner executes ordered steps sequentially against one StepContext.
// It is single-threaded and cooperative: a step may do its own I/O, but
// control returns to the runner only when the step completes. Step N+1
// never starts before step N returns.
type Runner struct {
	steps   []Step
	cleanup Step
}

// NewRunner creates a runner. cleanup may be nil; when set it runs
// best-effort exactly once after the first failure.
func NewRunner(steps []Step, cleanup Step) *Runner {
	return &Runner{steps: steps, cleanup: cleanup}
}

// Run executes the steps in order and returns the accumulated result plus
// the first failure's cause (nil on success). On the first non-nil step
// error the runner records it, invokes the cleanup step with a
// non-cancelable context, and stops; no further steps run.
func (r *Runner) Run(ctx context.Context, cfg *config.Workflow) (*WorkflowResult, error) {
	sc := NewStepContext(cfg)
	sc.Result.StartedAt = time.Now()

	ctx, span := tracing.GetTracer().Start(ctx, "pipeline.run")
	defer span.End()

	var firstCause error
	for _, step := range r.steps {
		err := r.runStep(ctx, step, sc)
		if err != nil {
			firstCause = err
			sc.Result.Errors = append(sc.Result.Errors, StepError{
				Step:    step.Name(),
				Message: err.Error(),
			})
			slog.Error("pipeline step failed",
				slog.String("step", step.Name()),
				slog.Any("error", err))
			r.runCleanup(ctx, sc)
			break
		}
	}

	sc.Result.Success = firstCause == nil
	sc.Result.FinishedAt = time.Now()

	duration := sc.Result.FinishedAt.Sub(sc.Result.StartedAt)
	metrics.RecordPipelineRun(sc.Result.Success, duration)
	slog.Info("pipeline run finished",
		slog.Bool("success", sc.Result.Success),
		slog.Int("steps_run", len(sc.Result.StepTimings)),
		slog.Duration("duration", duration))

	return sc.Result, firstCause
}

// runStep executes one step, timing it and normalizing panics into the
// same failure shape as a returned error.
func (r *Runner) runStep(ctx context.Context, step Step, sc *StepContext) (err error) {
	ctx, span := tracing.GetTracer().Start(ctx, "step."+step.Name())
	defer span.End()

	start := time.Now()
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("step %s panicked: %v", step.Name(), rec)
			slog.Error("step panic recovered",
				slog.String("step", step.Name()),
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
		}
		elapsed := time.Since(start)
		sc.Result.StepTimings[step.Name()] = elapsed
		metrics.RecordStep(step.Name(), err == nil, elapsed)
	}()

	slog.Debug("running step", slog.String("step", step.Name()))
	return step.Execute(ctx, sc)
}

// runCleanup invokes the cleanup step best-effort: its context survives
// cancellation of the run, and neither its error nor a panic propagates.
func (r *Runner) runCleanup(ctx context.Context, sc *StepContext) {
	if r.cleanup == nil {
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("cleanup step panicked",
				slog.Any("panic", rec),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	safeCtx := context.WithoutCancel(ctx)
	start := time.Now()
	err := r.cleanup.Execute(safeCtx, sc)
	sc.Result.StepTimings[r.cleanup.Name()] = time.Since(start)
	if err != nil {
		slog.Warn("cleanup step reported error",
			slog.String("step", r.cleanup.Name()),
			slog.Any("error", err))
	}
}
