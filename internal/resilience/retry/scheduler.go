package retry

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"briefcast/internal/resilience/classify"
)

// Ledger persists error records. Implemented by internal/ledger.
type Ledger interface {
	Upsert(ctx context.Context, record *ErrorRecord) error
}

// Fallback dispatches a compensating action for an exhausted record.
// Implemented by internal/resilience/fallback. Dispatch must not panic
// through and must not block on retries of its own.
type Fallback interface {
	Dispatch(ctx context.Context, record *ErrorRecord)
}

// Notifier surfaces terminal failures and recoveries to the user.
type Notifier interface {
	NotifyFailure(ctx context.Context, record *ErrorRecord, finalCause error)
	NotifyRecovery(ctx context.Context, record *ErrorRecord)
}

// Scheduler drives one error record's retry lifecycle:
// Open → Retrying → {Resolved | Exhausted}.
type Scheduler struct {
	ledger   Ledger
	fallback Fallback
	notifier Notifier

	jitter bool
	rand   *rand.Rand
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithoutJitter disables the jitter factor. Useful when deterministic
// delays matter more than avoiding synchronized retry storms.
func WithoutJitter() Option {
	return func(s *Scheduler) { s.jitter = false }
}

// WithRand injects the jitter randomness source. Tests pass a fixed seed.
func WithRand(r *rand.Rand) Option {
	return func(s *Scheduler) { s.rand = r }
}

// WithClock injects the time source. Tests use it to avoid real sleeps.
func WithClock(now func() time.Time, sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// NewScheduler creates a scheduler. ledger, fallback, and notifier may be
// nil for callers that only want the backoff behavior.
func NewScheduler(ledger Ledger, fallback Fallback, notifier Notifier, opts ...Option) *Scheduler {
	s := &Scheduler{
		ledger:   ledger,
		fallback: fallback,
		notifier: notifier,
		jitter:   true,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		now:      time.Now,
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Retry performs a single retry attempt for record. It no-ops when the
// record cannot be retried, otherwise it suspends the caller until the
// (jittered) next-retry time, increments the retry count, and invokes op.
//
// Success resolves the record and emits a recovery notification when the
// policy requires one. Failure updates the record; once the budget is
// exhausted the fallback is dispatched and, for high or critical severity,
// a failure notification is emitted with the final cause.
//
// The returned error is op's error for a failed attempt, nil for a
// successful or skipped one, or the context error when the wait aborted.
func (s *Scheduler) Retry(ctx context.Context, record *ErrorRecord, op func(context.Context) error) error {
	if !record.CanRetry() {
		slog.Debug("retry skipped",
			slog.String("record_id", record.ID()),
			slog.String("state", string(record.State())))
		return nil
	}

	delay := record.NextRetryAt().Sub(s.now())
	if s.jitter {
		// Uniform factor in [0.5, 1.0) keeps simultaneous records from
		// hammering a recovering collaborator in lockstep.
		factor := 0.5 + 0.5*s.rand.Float64()
		delay = time.Duration(float64(delay) * factor)
	}
	if delay > 0 {
		slog.Info("waiting before retry",
			slog.String("record_id", record.ID()),
			slog.String("kind", string(record.Kind)),
			slog.Int("retry_count", record.RetryCount),
			slog.Duration("delay", delay))
		if err := s.sleep(ctx, delay); err != nil {
			return fmt.Errorf("retry wait aborted: %w", err)
		}
	}

	record.RetryCount++
	s.persist(ctx, record)

	err := op(ctx)
	if err == nil {
		record.Resolved = true
		record.ResolvedAt = s.now()
		s.persist(ctx, record)
		slog.Info("error recovered",
			slog.String("record_id", record.ID()),
			slog.String("kind", string(record.Kind)),
			slog.Int("retry_count", record.RetryCount))
		if record.NotifyUser && s.notifier != nil {
			s.notifier.NotifyRecovery(ctx, record)
		}
		return nil
	}

	s.persist(ctx, record)

	if record.State() == StateExhausted {
		slog.Warn("retry budget exhausted",
			slog.String("record_id", record.ID()),
			slog.String("kind", string(record.Kind)),
			slog.Int("retry_count", record.RetryCount),
			slog.Any("error", err))
		if s.fallback != nil {
			s.fallback.Dispatch(ctx, record)
		}
		if s.notifier != nil && (record.Severity == classify.SeverityHigh || record.Severity == classify.SeverityCritical) {
			s.notifier.NotifyFailure(ctx, record, err)
		}
	}

	return err
}

// Run retries op until the record resolves or exhausts its budget. It
// returns nil once resolved, the last attempt's error once exhausted, or
// the context error if a wait aborted.
func (s *Scheduler) Run(ctx context.Context, record *ErrorRecord, op func(context.Context) error) error {
	var lastErr error
	for record.CanRetry() {
		lastErr = s.Retry(ctx, record, op)
		if record.Resolved {
			return nil
		}
		if ctx.Err() != nil {
			return lastErr
		}
	}
	return lastErr
}

func (s *Scheduler) persist(ctx context.Context, record *ErrorRecord) {
	if s.ledger == nil {
		return
	}
	if err := s.ledger.Upsert(ctx, record); err != nil {
		// Persistence problems must not break the retry path itself.
		slog.Warn("ledger upsert failed",
			slog.String("record_id", record.ID()),
			slog.Any("error", err))
	}
}
