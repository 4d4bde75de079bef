// Package fallback maps error kinds to compensating actions that run once
// a record's retry budget is exhausted. Dispatch never propagates: a
// fallback that fails (or panics) is logged and swallowed, because the
// pipeline is already past the point where the failure could be handled.
package fallback

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"

	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
)

// Action is a compensating action for one exhausted error record.
type Action func(ctx context.Context, record *retry.ErrorRecord) error

// DegradedNotifier receives the default degraded-mode notification when no
// action is registered for a kind.
type DegradedNotifier interface {
	NotifyDegraded(ctx context.Context, record *retry.ErrorRecord)
}

// Dispatcher is a registry of kind → action with a safe default.
type Dispatcher struct {
	mu       sync.RWMutex
	actions  map[classify.Kind]Action
	notifier DegradedNotifier
}

// NewDispatcher creates a dispatcher. notifier may be nil; the default
// action then degrades to a log line.
func NewDispatcher(notifier DegradedNotifier) *Dispatcher {
	return &Dispatcher{
		actions:  make(map[classify.Kind]Action),
		notifier: notifier,
	}
}

// Register binds an action to a kind. Registering twice overwrites the
// previous action, last write wins, and the overwrite is logged so a
// misconfigured double registration is visible.
func (d *Dispatcher) Register(kind classify.Kind, action Action) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.actions[kind]; exists {
		slog.Warn("fallback action overwritten",
			slog.String("kind", string(kind)))
	}
	d.actions[kind] = action
}

// Dispatch runs the action registered for the record's kind, or the
// kind-agnostic default. When the record's policy disables fallback the
// dispatch is a true no-op. Errors and panics inside actions are caught,
// logged, and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, record *retry.ErrorRecord) {
	if !record.FallbackEnabled {
		slog.Debug("fallback disabled for kind",
			slog.String("kind", string(record.Kind)),
			slog.String("record_id", record.ID()))
		return
	}

	d.mu.RLock()
	action, ok := d.actions[record.Kind]
	d.mu.RUnlock()

	if !ok {
		d.dispatchDefault(ctx, record)
		return
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("fallback action panicked",
				slog.String("kind", string(record.Kind)),
				slog.String("record_id", record.ID()),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()

	if err := action(ctx, record); err != nil {
		slog.Error("fallback action failed",
			slog.String("kind", string(record.Kind)),
			slog.String("record_id", record.ID()),
			slog.Any("error", err))
	}
}

// dispatchDefault is the kind-agnostic default: announce degraded mode.
func (d *Dispatcher) dispatchDefault(ctx context.Context, record *retry.ErrorRecord) {
	slog.Warn("no fallback registered, entering degraded mode",
		slog.String("kind", string(record.Kind)),
		slog.String("record_id", record.ID()),
		slog.String("message", record.Message))
	if d.notifier != nil {
		d.notifier.NotifyDegraded(ctx, record)
	}
}
