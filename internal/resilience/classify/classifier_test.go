package classify_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"
	"time"

	"briefcast/internal/resilience/classify"
)

func TestKindValid(t *testing.T) {
	for _, k := range classify.Kinds() {
		if !k.Valid() {
			t.Errorf("kind %q should be valid", k)
		}
	}
	if classify.Kind("made_up").Valid() {
		t.Error("unknown kind string should not be valid")
	}
}

func TestPolicyForUnknownKindFallsBack(t *testing.T) {
	got := classify.PolicyFor(classify.Kind("nonsense"))
	want := classify.PolicyFor(classify.KindUnknown)
	if got != want {
		t.Errorf("PolicyFor(nonsense) = %+v, want unknown policy %+v", got, want)
	}
}

func TestClassifyStageTag(t *testing.T) {
	c := classify.NewClassifier(nil)

	err := classify.WithKind(classify.KindSynthesisFailed, errors.New("tts rejected chunk"))
	got := c.Classify(err, "")

	if got.Kind != classify.KindSynthesisFailed {
		t.Fatalf("Kind = %s, want synthesis_failed", got.Kind)
	}
	if got.Policy.MaxRetries != 3 || got.Policy.Severity != classify.SeverityHigh {
		t.Errorf("unexpected policy %+v", got.Policy)
	}
	if got.Message == "" {
		t.Error("message should default to the cause's text")
	}
}

func TestClassifySpecificCauseBeatsStageTag(t *testing.T) {
	c := classify.NewClassifier(nil)

	tests := []struct {
		name string
		err  error
		want classify.Kind
	}{
		{
			name: "auth inside synthesis",
			err: classify.WithKind(classify.KindSynthesisFailed,
				&classify.HTTPError{StatusCode: 401, Message: "bad key"}),
			want: classify.KindAuthenticationError,
		},
		{
			name: "quota inside transform",
			err: classify.WithKind(classify.KindTransformFailed,
				&classify.HTTPError{StatusCode: 429, Message: "rate limited"}),
			want: classify.KindQuotaExceeded,
		},
		{
			name: "payment required",
			err:  &classify.HTTPError{StatusCode: 402, Message: "billing"},
			want: classify.KindQuotaExceeded,
		},
		{
			name: "server error",
			err:  &classify.HTTPError{StatusCode: 503, Message: "unavailable"},
			want: classify.KindUpstreamAPIError,
		},
		{
			name: "plain 4xx",
			err:  &classify.HTTPError{StatusCode: 400, Message: "bad request"},
			want: classify.KindUpstreamAPIError,
		},
		{
			name: "connection refused inside broadcast",
			err: classify.WithKind(classify.KindBroadcastFailed,
				fmt.Errorf("post: %w", syscall.ECONNREFUSED)),
			want: classify.KindNetworkError,
		},
		{
			name: "dns failure",
			err:  &net.DNSError{Err: "no such host", Name: "feeds.example.com"},
			want: classify.KindNetworkError,
		},
		{
			name: "path error",
			err:  &os.PathError{Op: "open", Path: "/data/x", Err: syscall.ENOSPC},
			want: classify.KindFilesystemError,
		},
		{
			name: "disk full inside packaging",
			err: classify.WithKind(classify.KindPackagingUploadFailed,
				fmt.Errorf("write episode: %w", &os.PathError{Op: "write", Path: "/data/briefing.mp3", Err: syscall.ENOSPC})),
			want: classify.KindFilesystemError,
		},
		{
			name: "bare errno is not network",
			err:  fmt.Errorf("copy: %w", syscall.ENOSPC),
			want: classify.KindUnknown,
		},
		{
			name: "untagged surprise",
			err:  errors.New("something odd"),
			want: classify.KindUnknown,
		},
		{
			name: "nil cause",
			err:  nil,
			want: classify.KindUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := c.Classify(tt.err, "").Kind; got != tt.want {
				t.Errorf("Classify(%v) = %s, want %s", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassifyContextCancellationIsNotNetwork(t *testing.T) {
	c := classify.NewClassifier(nil)

	got := c.Classify(fmt.Errorf("fetch: %w", context.Canceled), "")
	if got.Kind == classify.KindNetworkError {
		t.Error("context cancellation must not classify as a network error")
	}
}

func TestClassifyRetryOverride(t *testing.T) {
	c := classify.NewClassifier(map[classify.Kind]int{
		classify.KindNetworkError: 9,
	})

	got := c.Classify(fmt.Errorf("dial: %w", syscall.ETIMEDOUT), "")
	if got.Policy.MaxRetries != 9 {
		t.Errorf("MaxRetries = %d, want override 9", got.Policy.MaxRetries)
	}
	// Only MaxRetries is overridable; the rest of the policy is fixed.
	if got.Policy.BackoffBase != 5*time.Second {
		t.Errorf("BackoffBase = %s, want table value", got.Policy.BackoffBase)
	}
}

func TestWithKindNil(t *testing.T) {
	if classify.WithKind(classify.KindUnknown, nil) != nil {
		t.Error("WithKind(nil) should return nil")
	}
}

func TestKindErrorUnwrap(t *testing.T) {
	base := errors.New("root")
	wrapped := classify.WithKind(classify.KindTransformFailed, base)
	if !errors.Is(wrapped, base) {
		t.Error("KindError should unwrap to its cause")
	}
}
