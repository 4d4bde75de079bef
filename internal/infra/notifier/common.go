// Package notifier delivers outbound webhook notifications: episode
// announcements to subscribers and operator alerts for terminal failures
// and recoveries.
package notifier

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

type contextKey string

const requestIDKey contextKey = "request_id"

// RateLimitError represents a 429 response from a webhook service.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s (retry after %v)", e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("rate limit exceeded (retry after %v)", e.RetryAfter)
}

// ClientError represents a non-429 4xx response.
type ClientError struct {
	StatusCode int
	Message    string
}

func (e *ClientError) Error() string {
	return e.Message
}

// ServerError represents a 5xx response.
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	return e.Message
}

// is429Error checks for a rate limit error and extracts retry_after.
func is429Error(err error) (*RateLimitError, bool) {
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return rateLimitErr, true
	}
	return nil, false
}

// isRetryableError reports whether the error is worth retrying. Server
// and network errors are; client errors are not; 429 is handled by
// is429Error.
func isRetryableError(err error) bool {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return true
	}
	var clientErr *ClientError
	if errors.As(err, &clientErr) {
		return false
	}
	var rateLimitErr *RateLimitError
	if errors.As(err, &rateLimitErr) {
		return false
	}
	return true
}

// extractRetryAfter reads the Retry-After header, defaulting to 5s.
func extractRetryAfter(resp *http.Response) time.Duration {
	const fallback = 5 * time.Second
	header := resp.Header.Get("Retry-After")
	if header == "" {
		return fallback
	}
	if seconds, err := strconv.Atoi(header); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return fallback
}

// truncateText truncates text to maxLength, appending suffix when cut.
func truncateText(text string, maxLength int, suffix string) string {
	if len(text) <= maxLength {
		return text
	}
	truncateAt := maxLength - len(suffix)
	if truncateAt < 0 {
		truncateAt = 0
	}
	return text[:truncateAt] + suffix
}
