package fetcher

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	readability "github.com/go-shiori/go-readability"

	"briefcast/internal/resilience/circuitbreaker"
	"briefcast/internal/resilience/classify"
)

// ContentEnhancer fetches the article page behind a candidate URL and
// extracts clean text with the Readability algorithm. Used when a feed
// item's own content is too thin for scoring and composition.
//
// Safe for concurrent use.
type ContentEnhancer struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	config         ContentFetchConfig
}

// NewContentEnhancer creates an enhancer with redirect validation and a
// dedicated circuit breaker.
func NewContentEnhancer(config ContentFetchConfig) *ContentEnhancer {
	e := &ContentEnhancer{
		circuitBreaker: circuitbreaker.New(circuitbreaker.Config{
			Name:             "content-fetch",
			MaxRequests:      5,
			Interval:         60 * time.Second,
			Timeout:          60 * time.Second,
			FailureThreshold: 0.6,
			MinRequests:      5,
		}),
		config: config,
	}

	e.client = &http.Client{
		Timeout: 30 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= e.config.MaxRedirects {
				return fmt.Errorf("%w: %d redirects", ErrTooManyRedirects, len(via))
			}
			// Every redirect target gets the same SSRF check as the
			// original URL.
			if err := validateURL(req.URL.String(), e.config.DenyPrivateIPs); err != nil {
				return fmt.Errorf("redirect target rejected: %w", err)
			}
			return nil
		},
	}
	return e
}

// FetchContent fetches and extracts article text from urlStr.
func (e *ContentEnhancer) FetchContent(ctx context.Context, urlStr string) (string, error) {
	if err := validateURL(urlStr, e.config.DenyPrivateIPs); err != nil {
		return "", err
	}

	result, err := e.circuitBreaker.Execute(func() (interface{}, error) {
		return e.doFetch(ctx, urlStr)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (e *ContentEnhancer) doFetch(ctx context.Context, urlStr string) (interface{}, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, urlStr, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("User-Agent", "BriefcastBot/1.0")

	resp, err := e.client.Do(req)
	if err != nil {
		if urlErr, ok := err.(*url.Error); ok && urlErr.Err != nil {
			return "", urlErr.Err
		}
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", &classify.HTTPError{StatusCode: resp.StatusCode, Message: urlStr}
	}

	// Size is enforced while reading, not via Content-Length.
	limited := io.LimitReader(resp.Body, e.config.MaxBodySize+1)
	htmlBytes, err := io.ReadAll(limited)
	if err != nil {
		return "", fmt.Errorf("read response body: %w", err)
	}
	if int64(len(htmlBytes)) > e.config.MaxBodySize {
		return "", fmt.Errorf("%w: over %d bytes", ErrBodyTooLarge, e.config.MaxBodySize)
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		parsedURL = nil
	}
	if resp.Request != nil && resp.Request.URL != nil {
		parsedURL = resp.Request.URL
	}

	article, err := readability.FromReader(bytes.NewReader(htmlBytes), parsedURL)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoContent, err)
	}

	if article.TextContent == "" {
		if article.Content == "" {
			return "", ErrNoContent
		}
		slog.Debug("falling back to raw extracted content",
			slog.String("url", urlStr),
			slog.Int("content_length", len(article.Content)))
		return article.Content, nil
	}
	return article.TextContent, nil
}
