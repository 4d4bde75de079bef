package retry_test

import (
	"context"
	"errors"
	"syscall"
	"testing"
	"time"

	"pgregory.net/rapid"

	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
)

func fastConfig(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
	}
}

func TestWithBackoffSucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	err := retry.WithBackoff(context.Background(), fastConfig(3), func() error {
		attempts++
		if attempts < 2 {
			return syscall.ECONNRESET
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithBackoff err=%v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
}

func TestWithBackoffExhaustsAttempts(t *testing.T) {
	attempts := 0
	err := retry.WithBackoff(context.Background(), fastConfig(3), func() error {
		attempts++
		return syscall.ETIMEDOUT
	})
	if err == nil {
		t.Fatal("expected exhaustion error")
	}
	if !errors.Is(err, syscall.ETIMEDOUT) {
		t.Errorf("err should wrap the last failure, got %v", err)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestWithBackoffStopsOnNonRetryable(t *testing.T) {
	attempts := 0
	bad := &classify.HTTPError{StatusCode: 400, Message: "malformed"}
	err := retry.WithBackoff(context.Background(), fastConfig(5), func() error {
		attempts++
		return bad
	})
	if !errors.Is(err, bad) {
		t.Fatalf("err=%v, want the 400 unchanged", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1 for a non-retryable error", attempts)
	}
}

func TestWithBackoffHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	attempts := 0
	err := retry.WithBackoff(ctx, retry.Config{
		MaxAttempts:  5,
		InitialDelay: time.Hour,
		MaxDelay:     time.Hour,
		Multiplier:   2.0,
	}, func() error {
		attempts++
		cancel()
		return syscall.ECONNREFUSED
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v, want context cancellation", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"context canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, false},
		{"conn refused", syscall.ECONNREFUSED, true},
		{"conn reset", syscall.ECONNRESET, true},
		{"http 500", &classify.HTTPError{StatusCode: 500}, true},
		{"http 429", &classify.HTTPError{StatusCode: 429}, true},
		{"http 408", &classify.HTTPError{StatusCode: 408}, true},
		{"http 404", &classify.HTTPError{StatusCode: 404}, false},
		{"http 401", &classify.HTTPError{StatusCode: 401}, false},
		{"plain error", errors.New("whatever"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retry.IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

// Backoff delays must stay within [base, 2*cap) regardless of retry count
// and jitter.
func TestRecordBackoffBounded(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rec := &retry.ErrorRecord{
			Kind:        classify.KindNetworkError,
			CreatedAt:   time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
			BackoffBase: time.Duration(rapid.Int64Range(int64(time.Second), int64(time.Hour)).Draw(t, "base")),
			RetryCount:  rapid.IntRange(0, 100).Draw(t, "retries"),
			MaxRetries:  200,
		}

		delay := rec.NextRetryAt().Sub(rec.CreatedAt)
		if delay < rec.BackoffBase {
			t.Fatalf("delay %s below base %s", delay, rec.BackoffBase)
		}
		if delay > 24*time.Hour {
			t.Fatalf("delay %s above the 24h cap", delay)
		}
	})
}
