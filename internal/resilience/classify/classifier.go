// Package classify maps raw collaborator failures to a closed set of error
// kinds, each carrying a fixed retry/notify/fallback policy. The kind set is
// closed on purpose: every policy decision downstream (retry budgets,
// fallback dispatch, user notification) switches on it.
package classify

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

// Kind is the closed classification of a failure cause.
type Kind string

const (
	KindSynthesisFailed       Kind = "synthesis_failed"
	KindTransformFailed       Kind = "transform_failed"
	KindPackagingUploadFailed Kind = "packaging_upload_failed"
	KindFeedGenerationFailed  Kind = "feed_generation_failed"
	KindBroadcastFailed       Kind = "broadcast_failed"
	KindUpstreamAPIError      Kind = "upstream_api_error"
	KindNetworkError          Kind = "network_error"
	KindFilesystemError       Kind = "filesystem_error"
	KindAuthenticationError   Kind = "authentication_error"
	KindQuotaExceeded         Kind = "quota_exceeded"
	KindUnknown               Kind = "unknown"
)

// Kinds lists every valid kind. Iteration order is stable.
func Kinds() []Kind {
	return []Kind{
		KindSynthesisFailed,
		KindTransformFailed,
		KindPackagingUploadFailed,
		KindFeedGenerationFailed,
		KindBroadcastFailed,
		KindUpstreamAPIError,
		KindNetworkError,
		KindFilesystemError,
		KindAuthenticationError,
		KindQuotaExceeded,
		KindUnknown,
	}
}

// Valid reports whether k is a member of the closed kind set.
func (k Kind) Valid() bool {
	switch k {
	case KindSynthesisFailed, KindTransformFailed, KindPackagingUploadFailed,
		KindFeedGenerationFailed, KindBroadcastFailed, KindUpstreamAPIError,
		KindNetworkError, KindFilesystemError, KindAuthenticationError,
		KindQuotaExceeded, KindUnknown:
		return true
	}
	return false
}

// Severity expresses how loudly an unresolved error of a kind should surface.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Severities lists every severity level, lowest first.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Policy is the fixed retry/notify/fallback contract attached to a kind.
type Policy struct {
	// MaxRetries is the retry budget before the error is exhausted.
	MaxRetries int

	// BackoffBase is the base delay; the n-th retry waits base * 2^n,
	// optionally scaled by jitter.
	BackoffBase time.Duration

	// Severity controls notification urgency for unresolved errors.
	Severity Severity

	// NotifyUser forces a notification on exhaustion and on recovery.
	NotifyUser bool

	// FallbackEnabled gates whether the dispatcher runs any compensating
	// action for this kind.
	FallbackEnabled bool
}

// policies is the fixed policy table. QuotaExceeded and AuthenticationError
// rarely self-heal, so they get near-zero retries and mandatory
// notification; transient kinds get generous budgets.
var policies = map[Kind]Policy{
	KindSynthesisFailed:       {MaxRetries: 3, BackoffBase: 30 * time.Second, Severity: SeverityHigh, NotifyUser: true, FallbackEnabled: true},
	KindTransformFailed:       {MaxRetries: 3, BackoffBase: 15 * time.Second, Severity: SeverityHigh, NotifyUser: true, FallbackEnabled: true},
	KindPackagingUploadFailed: {MaxRetries: 5, BackoffBase: 10 * time.Second, Severity: SeverityHigh, NotifyUser: true, FallbackEnabled: true},
	KindFeedGenerationFailed:  {MaxRetries: 2, BackoffBase: 10 * time.Second, Severity: SeverityMedium, NotifyUser: false, FallbackEnabled: true},
	KindBroadcastFailed:       {MaxRetries: 3, BackoffBase: 5 * time.Second, Severity: SeverityLow, NotifyUser: false, FallbackEnabled: true},
	KindUpstreamAPIError:      {MaxRetries: 4, BackoffBase: 10 * time.Second, Severity: SeverityMedium, NotifyUser: false, FallbackEnabled: true},
	KindNetworkError:          {MaxRetries: 5, BackoffBase: 5 * time.Second, Severity: SeverityMedium, NotifyUser: false, FallbackEnabled: true},
	KindFilesystemError:       {MaxRetries: 2, BackoffBase: 5 * time.Second, Severity: SeverityCritical, NotifyUser: true, FallbackEnabled: true},
	KindAuthenticationError:   {MaxRetries: 0, BackoffBase: time.Minute, Severity: SeverityCritical, NotifyUser: true, FallbackEnabled: false},
	KindQuotaExceeded:         {MaxRetries: 1, BackoffBase: time.Hour, Severity: SeverityCritical, NotifyUser: true, FallbackEnabled: false},
	KindUnknown:               {MaxRetries: 1, BackoffBase: time.Minute, Severity: SeverityHigh, NotifyUser: true, FallbackEnabled: false},
}

// PolicyFor returns the policy for a kind. Unrecognized kinds fall back to
// the Unknown policy, the most conservative one.
func PolicyFor(k Kind) Policy {
	if p, ok := policies[k]; ok {
		return p
	}
	return policies[KindUnknown]
}

// KindError tags an error with the kind its origin already knows. Steps use
// it to carry stage context (a synthesis step failing with a timeout is
// still a synthesis failure unless the cause is more specific).
type KindError struct {
	Kind Kind
	Err  error
}

func (e *KindError) Error() string { return string(e.Kind) + ": " + e.Err.Error() }
func (e *KindError) Unwrap() error { return e.Err }

// WithKind wraps err with a kind tag. A nil err returns nil.
func WithKind(kind Kind, err error) error {
	if err == nil {
		return nil
	}
	return &KindError{Kind: kind, Err: err}
}

// HTTPError represents an HTTP failure with its status code. Collaborator
// adapters return it so classification can distinguish auth, quota, and
// upstream failures.
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return http.StatusText(e.StatusCode) + ": " + e.Message
}

// Classified is the classifier's verdict: the kind plus its effective
// policy and the original message.
type Classified struct {
	Kind    Kind
	Policy  Policy
	Message string
	Cause   error
}

// Classifier maps raw failures to kinds. Per-kind retry overrides come from
// configuration; the rest of each policy is fixed.
type Classifier struct {
	retryOverrides map[Kind]int
}

// NewClassifier creates a classifier. retryOverrides may be nil; entries
// replace the table's MaxRetries for that kind only.
func NewClassifier(retryOverrides map[Kind]int) *Classifier {
	return &Classifier{retryOverrides: retryOverrides}
}

// Classify maps a raw failure to a kind and policy.
//
// Precedence: an explicit KindError tag wins over generic cause
// inspection, except that auth/quota/network causes are more specific than
// a stage tag and take priority. Everything unrecognized maps to Unknown
// with the most conservative policy.
func (c *Classifier) Classify(cause error, message string) Classified {
	kind := c.kindOf(cause)

	policy := PolicyFor(kind)
	if c.retryOverrides != nil {
		if override, ok := c.retryOverrides[kind]; ok && override >= 0 {
			policy.MaxRetries = override
		}
	}

	if message == "" && cause != nil {
		message = cause.Error()
	}

	return Classified{Kind: kind, Policy: policy, Message: message, Cause: cause}
}

func (c *Classifier) kindOf(cause error) Kind {
	if cause == nil {
		return KindUnknown
	}

	// Specific transport-level causes beat stage tags.
	var httpErr *HTTPError
	if errors.As(cause, &httpErr) {
		switch {
		case httpErr.StatusCode == http.StatusUnauthorized || httpErr.StatusCode == http.StatusForbidden:
			return KindAuthenticationError
		case httpErr.StatusCode == http.StatusTooManyRequests || httpErr.StatusCode == http.StatusPaymentRequired:
			return KindQuotaExceeded
		case httpErr.StatusCode >= 500:
			return KindUpstreamAPIError
		}
	}

	// Filesystem causes before the network check: a PathError wrapping an
	// errno would otherwise satisfy net.Error and misclassify.
	var pathErr *os.PathError
	if errors.As(cause, &pathErr) {
		return KindFilesystemError
	}

	if isNetworkCause(cause) {
		return KindNetworkError
	}

	var kindErr *KindError
	if errors.As(cause, &kindErr) && kindErr.Kind.Valid() {
		return kindErr.Kind
	}

	if httpErr != nil {
		// Remaining 4xx without a stage tag: the upstream rejected us.
		return KindUpstreamAPIError
	}

	return KindUnknown
}

// isNetworkCause reports whether the error chain contains a transport
// failure. Context cancellation is deliberately not a network error: it is
// the caller giving up, not the network failing.
func isNetworkCause(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		// syscall.Errno implements net.Error. A bare errno is only a
		// transport failure when it is one of the connection errnos below.
		if _, bare := netErr.(syscall.Errno); !bare {
			return true
		}
	}

	return errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH)
}
