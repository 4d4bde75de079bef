// Package retry drives the lifecycle of classified errors: exponential
// backoff with jitter, retry budgets, fallback dispatch on exhaustion, and
// durable record keeping through the ledger.
package retry

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"briefcast/internal/resilience/classify"
)

// State is the lifecycle position of an error record.
type State string

const (
	StateOpen      State = "open"
	StateRetrying  State = "retrying"
	StateResolved  State = "resolved"
	StateExhausted State = "exhausted"
)

// ErrorRecord is one durable error occurrence. A record is created on the
// first occurrence of a (kind, message) pair, mutated on each retry, and
// pruned once resolved and older than the retention threshold.
type ErrorRecord struct {
	Kind            classify.Kind     `json:"kind"`
	Severity        classify.Severity `json:"severity"`
	Message         string            `json:"message"`
	CreatedAt       time.Time         `json:"created_at"`
	RetryCount      int               `json:"retry_count"`
	MaxRetries      int               `json:"max_retries"`
	BackoffBase     time.Duration     `json:"backoff_base"`
	Resolved        bool              `json:"resolved"`
	ResolvedAt      time.Time         `json:"resolved_at,omitempty"`
	NotifyUser      bool              `json:"notify_user"`
	FallbackEnabled bool              `json:"fallback_enabled"`
}

// NewRecord creates a record from a classifier verdict. CreatedAt is
// truncated to microseconds: timestamptz columns carry no finer precision,
// and the content-derived ID must not change on a database round trip.
func NewRecord(cl classify.Classified, now time.Time) *ErrorRecord {
	return &ErrorRecord{
		Kind:            cl.Kind,
		Severity:        cl.Policy.Severity,
		Message:         cl.Message,
		CreatedAt:       now.Truncate(time.Microsecond),
		MaxRetries:      cl.Policy.MaxRetries,
		BackoffBase:     cl.Policy.BackoffBase,
		NotifyUser:      cl.Policy.NotifyUser,
		FallbackEnabled: cl.Policy.FallbackEnabled,
	}
}

// ID returns the record's stable identifier: a content hash of kind,
// message, and creation time. It survives process restarts, so ledger
// reloads merge deterministically.
func (r *ErrorRecord) ID() string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", r.Kind, r.Message, r.CreatedAt.UTC().UnixNano())))
	return hex.EncodeToString(sum[:16])
}

// CanRetry reports whether another retry attempt is allowed. A resolved
// record is never retried again.
func (r *ErrorRecord) CanRetry() bool {
	return !r.Resolved && r.RetryCount < r.MaxRetries
}

// NextRetryAt is the un-jittered earliest time of the next attempt:
// created_at + base * 2^retry_count.
func (r *ErrorRecord) NextRetryAt() time.Time {
	return r.CreatedAt.Add(r.backoff())
}

func (r *ErrorRecord) backoff() time.Duration {
	d := r.BackoffBase
	for i := 0; i < r.RetryCount; i++ {
		d *= 2
		if d > maxBackoff {
			return maxBackoff
		}
	}
	return d
}

// maxBackoff caps the exponential growth so a long-lived record cannot
// compute a delay decades out.
const maxBackoff = 24 * time.Hour

// State derives the lifecycle state from the record's fields.
func (r *ErrorRecord) State() State {
	switch {
	case r.Resolved:
		return StateResolved
	case r.RetryCount >= r.MaxRetries:
		return StateExhausted
	case r.RetryCount > 0:
		return StateRetrying
	default:
		return StateOpen
	}
}
