// Package pipeline contains the step contract and the sequential runner
// that drives one briefing production run. Steps execute strictly in
// order against a shared context; the first failure stops the run and
// triggers the designated cleanup step.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"briefcast/internal/config"
)

// Step is one unit of pipeline work. Execute returns nil on success or an
// error describing an expected failure; panics are normalized by the
// runner into the same failure shape.
//
// Steps must be idempotent with respect to whole-pipeline retries: a
// retried run re-executes every prior step from the start, so steps
// overwrite shared-context keys rather than appending to them.
type Step interface {
	Name() string
	Execute(ctx context.Context, sc *StepContext) error
}

// StepContext is the mutable state shared across one run's steps. It is
// owned exclusively by that run: created at run start, discarded after the
// cleanup step. It is not safe for concurrent use and never needs to be.
type StepContext struct {
	Config *config.Workflow
	Result *WorkflowResult

	scratch map[string]any
}

// NewStepContext creates the context for one run.
func NewStepContext(cfg *config.Workflow) *StepContext {
	return &StepContext{
		Config:  cfg,
		Result:  NewWorkflowResult(),
		scratch: make(map[string]any),
	}
}

// Set stores inter-step data under key, replacing any prior value.
func (sc *StepContext) Set(key string, value any) {
	sc.scratch[key] = value
}

// Value returns the data stored under key.
func (sc *StepContext) Value(key string) (any, bool) {
	v, ok := sc.scratch[key]
	return v, ok
}

// StepError is one recorded step failure.
type StepError struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

func (e StepError) Error() string {
	return fmt.Sprintf("step %s: %s", e.Step, e.Message)
}

// WorkflowResult accumulates the outcome of one run. Errors is ordered
// and non-empty exactly when Success is false.
type WorkflowResult struct {
	Success     bool                     `json:"success"`
	Errors      []StepError              `json:"errors,omitempty"`
	Warnings    []string                 `json:"warnings,omitempty"`
	StepTimings map[string]time.Duration `json:"step_timings"`
	Metadata    map[string]any           `json:"metadata"`
	StartedAt   time.Time                `json:"started_at"`
	FinishedAt  time.Time                `json:"finished_at"`
}

// NewWorkflowResult creates an empty result.
func NewWorkflowResult() *WorkflowResult {
	return &WorkflowResult{
		StepTimings: make(map[string]time.Duration),
		Metadata:    make(map[string]any),
	}
}

// AddWarning records a non-fatal observation.
func (r *WorkflowResult) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// FirstError returns the first recorded failure, or nil.
func (r *WorkflowResult) FirstError() *StepError {
	if len(r.Errors) == 0 {
		return nil
	}
	return &r.Errors[0]
}
