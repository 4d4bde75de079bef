package retry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
)

/* ─────────────────────────── fakes ─────────────────────────── */

type fakeLedger struct {
	mu      sync.Mutex
	upserts []retry.ErrorRecord
}

func (f *fakeLedger) Upsert(_ context.Context, rec *retry.ErrorRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, *rec)
	return nil
}

type fakeFallback struct {
	dispatched []string
}

func (f *fakeFallback) Dispatch(_ context.Context, rec *retry.ErrorRecord) {
	f.dispatched = append(f.dispatched, string(rec.Kind))
}

type fakeNotifier struct {
	failures   int
	recoveries int
}

func (f *fakeNotifier) NotifyFailure(_ context.Context, _ *retry.ErrorRecord, _ error) {
	f.failures++
}

func (f *fakeNotifier) NotifyRecovery(_ context.Context, _ *retry.ErrorRecord) {
	f.recoveries++
}

// testClock makes waits instantaneous while tracking requested delays.
type testClock struct {
	now    time.Time
	sleeps []time.Duration
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Sleep(_ context.Context, d time.Duration) error {
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func newScheduler(led *fakeLedger, fb *fakeFallback, n *fakeNotifier, clock *testClock) *retry.Scheduler {
	return retry.NewScheduler(led, fb, n,
		retry.WithoutJitter(),
		retry.WithClock(clock.Now, clock.Sleep))
}

func recordFor(kind classify.Kind, err error, at time.Time) *retry.ErrorRecord {
	cl := classify.NewClassifier(nil).Classify(classify.WithKind(kind, err), "")
	return retry.NewRecord(cl, at)
}

/* ─────────────────────────── Run ─────────────────────────── */

func TestRunResolvesAfterTransientFailures(t *testing.T) {
	led := &fakeLedger{}
	fb := &fakeFallback{}
	n := &fakeNotifier{}
	clock := &testClock{now: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
	s := newScheduler(led, fb, n, clock)

	rec := recordFor(classify.KindSynthesisFailed, errors.New("tts hiccup"), clock.now)

	attempts := 0
	err := s.Run(context.Background(), rec, func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errors.New("still failing")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run err=%v", err)
	}

	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
	if !rec.Resolved || rec.State() != retry.StateResolved {
		t.Errorf("record should be resolved: %+v", rec)
	}
	if rec.ResolvedAt.IsZero() {
		t.Error("ResolvedAt should be set")
	}
	// Synthesis failures notify the user on recovery.
	if n.recoveries != 1 {
		t.Errorf("recoveries = %d, want 1", n.recoveries)
	}
	if len(fb.dispatched) != 0 {
		t.Errorf("fallback dispatched on a resolved record: %v", fb.dispatched)
	}
	if len(led.upserts) == 0 {
		t.Error("record mutations should persist through the ledger")
	}
	if last := led.upserts[len(led.upserts)-1]; !last.Resolved {
		t.Error("final upsert should carry the resolved record")
	}
}

func TestRunExhaustionDispatchesFallbackAndNotifies(t *testing.T) {
	led := &fakeLedger{}
	fb := &fakeFallback{}
	n := &fakeNotifier{}
	clock := &testClock{now: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
	s := newScheduler(led, fb, n, clock)

	// High severity, 3 retries, fallback enabled.
	rec := recordFor(classify.KindSynthesisFailed, errors.New("hard down"), clock.now)

	permanent := errors.New("provider down")
	err := s.Run(context.Background(), rec, func(context.Context) error {
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("Run err=%v, want last attempt error", err)
	}

	if rec.State() != retry.StateExhausted {
		t.Fatalf("State = %s, want exhausted", rec.State())
	}
	if rec.RetryCount != rec.MaxRetries {
		t.Errorf("RetryCount = %d, want %d", rec.RetryCount, rec.MaxRetries)
	}
	if len(fb.dispatched) != 1 {
		t.Errorf("fallback dispatches = %d, want exactly 1", len(fb.dispatched))
	}
	if n.failures != 1 {
		t.Errorf("failure notifications = %d, want 1 (high severity)", n.failures)
	}
	if n.recoveries != 0 {
		t.Errorf("recoveries = %d, want 0", n.recoveries)
	}
}

func TestRunLowSeverityExhaustionStaysQuiet(t *testing.T) {
	led := &fakeLedger{}
	fb := &fakeFallback{}
	n := &fakeNotifier{}
	clock := &testClock{now: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
	s := newScheduler(led, fb, n, clock)

	// Broadcast failures are low severity: fallback yes, notification no.
	rec := recordFor(classify.KindBroadcastFailed, errors.New("webhook 500"), clock.now)

	_ = s.Run(context.Background(), rec, func(context.Context) error {
		return errors.New("still 500")
	})

	if len(fb.dispatched) != 1 {
		t.Errorf("fallback dispatches = %d, want 1", len(fb.dispatched))
	}
	if n.failures != 0 {
		t.Errorf("failure notifications = %d, want 0 for low severity", n.failures)
	}
}

func TestRetrySkipsZeroBudgetRecord(t *testing.T) {
	led := &fakeLedger{}
	clock := &testClock{now: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
	s := newScheduler(led, &fakeFallback{}, &fakeNotifier{}, clock)

	// Authentication errors carry MaxRetries 0.
	rec := recordFor(classify.KindAuthenticationError,
		&classify.HTTPError{StatusCode: 401, Message: "bad key"}, clock.now)

	ran := false
	err := s.Retry(context.Background(), rec, func(context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("Retry err=%v", err)
	}
	if ran {
		t.Error("op must not run for a zero-budget record")
	}
	if rec.Resolved {
		t.Error("skipped record must not be marked resolved")
	}
}

func TestRetryWaitsUntilNextRetryAt(t *testing.T) {
	led := &fakeLedger{}
	clock := &testClock{now: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
	s := newScheduler(led, &fakeFallback{}, &fakeNotifier{}, clock)

	rec := recordFor(classify.KindNetworkError, errors.New("conn reset"), clock.now)

	_ = s.Retry(context.Background(), rec, func(context.Context) error { return nil })

	if len(clock.sleeps) != 1 {
		t.Fatalf("sleeps = %v, want one wait", clock.sleeps)
	}
	if clock.sleeps[0] != rec.BackoffBase {
		t.Errorf("first wait = %s, want base %s", clock.sleeps[0], rec.BackoffBase)
	}
}

func TestRunAbortsOnContextCancel(t *testing.T) {
	led := &fakeLedger{}
	clock := &testClock{now: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
	s := newScheduler(led, &fakeFallback{}, &fakeNotifier{}, clock)

	rec := recordFor(classify.KindNetworkError, errors.New("conn reset"), clock.now)

	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := s.Run(ctx, rec, func(context.Context) error {
		attempts++
		cancel()
		return errors.New("fail then cancel")
	})
	if err == nil {
		t.Fatal("Run should surface the failure after cancellation")
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 after cancel", attempts)
	}
}
