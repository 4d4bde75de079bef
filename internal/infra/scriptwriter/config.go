// Package scriptwriter provides the AI adapters that turn selected
// stories into a spoken briefing script. It includes Claude (Anthropic)
// and OpenAI implementations with circuit breaker and retry.
package scriptwriter

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

const (
	defaultWordLimit = 1200
	minWordLimit     = 200
	maxWordLimit     = 5000
)

// ScriptConfig holds shared configuration for the scriptwriter adapters.
type ScriptConfig struct {
	// WordLimit is the target maximum script length in words. Loaded from
	// SCRIPT_WORD_LIMIT (range 200-5000, default 1200).
	WordLimit int

	// Language is the script language.
	Language string

	// Model is the provider model identifier.
	Model string

	// MaxTokens bounds the API response.
	MaxTokens int

	// Timeout bounds a single generation call.
	Timeout time.Duration
}

// loadWordLimit reads SCRIPT_WORD_LIMIT with fail-open fallback.
func loadWordLimit() int {
	envLimit := os.Getenv("SCRIPT_WORD_LIMIT")
	if envLimit == "" {
		return defaultWordLimit
	}
	parsed, err := strconv.Atoi(envLimit)
	if err != nil {
		slog.Warn("invalid SCRIPT_WORD_LIMIT format, using default",
			slog.String("value", envLimit),
			slog.Int("default", defaultWordLimit))
		return defaultWordLimit
	}
	if parsed < minWordLimit || parsed > maxWordLimit {
		slog.Warn("SCRIPT_WORD_LIMIT out of valid range, using default",
			slog.Int("value", parsed),
			slog.Int("min", minWordLimit),
			slog.Int("max", maxWordLimit),
			slog.Int("default", defaultWordLimit))
		return defaultWordLimit
	}
	return parsed
}

// Validate checks the configuration.
func (c *ScriptConfig) Validate() error {
	if c.WordLimit < minWordLimit || c.WordLimit > maxWordLimit {
		return fmt.Errorf("word limit must be between %d and %d, got %d", minWordLimit, maxWordLimit, c.WordLimit)
	}
	if c.Language == "" {
		return fmt.Errorf("language cannot be empty")
	}
	if c.Model == "" {
		return fmt.Errorf("model cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive, got %d", c.MaxTokens)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	return nil
}
