// Package config provides reusable environment loading and validation
// helpers with fail-open semantics: an invalid value falls back to its
// default with a warning instead of refusing to start.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadResult is the outcome of loading one configuration value.
type LoadResult struct {
	Value           interface{}
	Warnings        []string
	FallbackApplied bool
}

// LoadEnvString reads a string variable, returning the default when unset.
// No validation is applied.
func LoadEnvString(envKey, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	return defaultValue
}

// LoadEnvWithFallback reads a string variable and validates it. An unset
// variable silently uses the default; a set-but-invalid one falls back to
// the default with a warning.
func LoadEnvWithFallback(envKey, defaultValue string, validator func(string) error) LoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return LoadResult{Value: defaultValue}
	}
	if validator != nil {
		if err := validator(value); err != nil {
			return LoadResult{
				Value:           defaultValue,
				Warnings:        []string{fmt.Sprintf("invalid %s=%q: %v, falling back to %q", envKey, value, err, defaultValue)},
				FallbackApplied: true,
			}
		}
	}
	return LoadResult{Value: value}
}

// LoadEnvInt reads an integer variable with validation and fallback.
func LoadEnvInt(envKey string, defaultValue int, validator func(int) error) LoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return LoadResult{Value: defaultValue}
	}
	parsed, err := strconv.Atoi(value)
	if err == nil && validator != nil {
		err = validator(parsed)
	}
	if err != nil {
		return LoadResult{
			Value:           defaultValue,
			Warnings:        []string{fmt.Sprintf("invalid %s=%q: %v, falling back to %d", envKey, value, err, defaultValue)},
			FallbackApplied: true,
		}
	}
	return LoadResult{Value: parsed}
}

// LoadEnvFloat reads a float variable with validation and fallback.
func LoadEnvFloat(envKey string, defaultValue float64, validator func(float64) error) LoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return LoadResult{Value: defaultValue}
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err == nil && validator != nil {
		err = validator(parsed)
	}
	if err != nil {
		return LoadResult{
			Value:           defaultValue,
			Warnings:        []string{fmt.Sprintf("invalid %s=%q: %v, falling back to %g", envKey, value, err, defaultValue)},
			FallbackApplied: true,
		}
	}
	return LoadResult{Value: parsed}
}

// LoadEnvDuration reads a duration variable ("30m", "1h") with validation
// and fallback.
func LoadEnvDuration(envKey string, defaultValue time.Duration, validator func(time.Duration) error) LoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return LoadResult{Value: defaultValue}
	}
	parsed, err := time.ParseDuration(value)
	if err == nil && validator != nil {
		err = validator(parsed)
	}
	if err != nil {
		return LoadResult{
			Value:           defaultValue,
			Warnings:        []string{fmt.Sprintf("invalid %s=%q: %v, falling back to %s", envKey, value, err, defaultValue)},
			FallbackApplied: true,
		}
	}
	return LoadResult{Value: parsed}
}

// LoadEnvBool reads a boolean variable ("true"/"false"/"1"/"0") with
// fallback on parse failure.
func LoadEnvBool(envKey string, defaultValue bool) LoadResult {
	value := os.Getenv(envKey)
	if value == "" {
		return LoadResult{Value: defaultValue}
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return LoadResult{
			Value:           defaultValue,
			Warnings:        []string{fmt.Sprintf("invalid %s=%q: %v, falling back to %t", envKey, value, err, defaultValue)},
			FallbackApplied: true,
		}
	}
	return LoadResult{Value: parsed}
}
