// Package fetcher provides the source fetch adapters: RSS feeds via
// gofeed and full-article content enhancement via the Readability
// algorithm.
package fetcher

import "errors"

var (
	// ErrInvalidURL indicates a URL that failed validation.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrPrivateIP indicates a URL resolving to a private address.
	ErrPrivateIP = errors.New("URL resolves to private IP")

	// ErrTooManyRedirects indicates the redirect limit was exceeded.
	ErrTooManyRedirects = errors.New("too many redirects")

	// ErrBodyTooLarge indicates a response exceeding the size limit.
	ErrBodyTooLarge = errors.New("response body too large")

	// ErrNoContent indicates extraction produced no readable content.
	ErrNoContent = errors.New("no readable content")
)
