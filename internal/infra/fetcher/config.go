package fetcher

import (
	"fmt"
	"time"

	pkgconfig "briefcast/internal/pkg/config"
)

// ContentFetchConfig controls the full-article content enhancement.
type ContentFetchConfig struct {
	// Enabled toggles enhancement; when false the feed's own content is
	// used directly.
	Enabled bool

	// Threshold is the minimum feed content length before a full fetch is
	// attempted. Feed items at or above it are considered sufficient.
	Threshold int

	// Timeout bounds a single HTTP request.
	Timeout time.Duration

	// Parallelism bounds concurrent enhancement fetches.
	Parallelism int

	// MaxBodySize bounds the HTTP response body, enforced while reading.
	MaxBodySize int64

	// MaxRedirects bounds redirect chains; every target is re-validated.
	MaxRedirects int

	// DenyPrivateIPs blocks URLs resolving to private, loopback or
	// link-local addresses.
	DenyPrivateIPs bool
}

// DefaultContentFetchConfig returns the production enhancement profile.
func DefaultContentFetchConfig() ContentFetchConfig {
	return ContentFetchConfig{
		Enabled:        true,
		Threshold:      1500,
		Timeout:        10 * time.Second,
		Parallelism:    10,
		MaxBodySize:    10 * 1024 * 1024,
		MaxRedirects:   5,
		DenyPrivateIPs: true,
	}
}

// Validate checks the configuration bounds.
func (c *ContentFetchConfig) Validate() error {
	if c.Threshold < 0 {
		return fmt.Errorf("threshold must be non-negative, got %d", c.Threshold)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.Parallelism < 1 || c.Parallelism > 50 {
		return fmt.Errorf("parallelism must be between 1 and 50, got %d", c.Parallelism)
	}
	if c.MaxBodySize < 1024 || c.MaxBodySize > 100*1024*1024 {
		return fmt.Errorf("max body size must be between 1KB and 100MB, got %d", c.MaxBodySize)
	}
	if c.MaxRedirects < 0 || c.MaxRedirects > 10 {
		return fmt.Errorf("max redirects must be between 0 and 10, got %d", c.MaxRedirects)
	}
	return nil
}

// LoadContentFetchConfig loads the enhancement configuration from the
// environment with fail-open fallback, then validates the result.
func LoadContentFetchConfig() (ContentFetchConfig, []string, error) {
	cfg := DefaultContentFetchConfig()
	var warnings []string

	collect := func(r pkgconfig.LoadResult) interface{} {
		warnings = append(warnings, r.Warnings...)
		return r.Value
	}

	cfg.Enabled = collect(pkgconfig.LoadEnvBool("CONTENT_FETCH_ENABLED", cfg.Enabled)).(bool)
	cfg.Threshold = collect(pkgconfig.LoadEnvInt("CONTENT_FETCH_THRESHOLD", cfg.Threshold, nil)).(int)
	cfg.Timeout = collect(pkgconfig.LoadEnvDuration("CONTENT_FETCH_TIMEOUT", cfg.Timeout, pkgconfig.ValidatePositiveDuration)).(time.Duration)
	cfg.Parallelism = collect(pkgconfig.LoadEnvInt("CONTENT_FETCH_PARALLELISM", cfg.Parallelism, pkgconfig.ValidateIntRange(1, 50))).(int)
	cfg.MaxRedirects = collect(pkgconfig.LoadEnvInt("CONTENT_FETCH_MAX_REDIRECTS", cfg.MaxRedirects, pkgconfig.ValidateIntRange(0, 10))).(int)
	cfg.DenyPrivateIPs = collect(pkgconfig.LoadEnvBool("CONTENT_FETCH_DENY_PRIVATE_IPS", cfg.DenyPrivateIPs)).(bool)

	if err := cfg.Validate(); err != nil {
		return cfg, warnings, fmt.Errorf("content fetch configuration invalid: %w", err)
	}
	return cfg, warnings, nil
}
