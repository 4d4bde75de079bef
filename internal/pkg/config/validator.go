package config

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// ValidateCronSchedule checks a standard 5-field cron expression.
func ValidateCronSchedule(schedule string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule: %w", err)
	}
	return nil
}

// ValidateTimezone checks an IANA timezone name against the local tzdata.
func ValidateTimezone(tz string) error {
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("invalid timezone: %w", err)
	}
	return nil
}

// ValidateIntRange returns a validator enforcing min <= v <= max.
func ValidateIntRange(min, max int) func(int) error {
	return func(v int) error {
		if v < min || v > max {
			return fmt.Errorf("value %d out of range [%d, %d]", v, min, max)
		}
		return nil
	}
}

// ValidatePositiveDuration rejects zero and negative durations.
func ValidatePositiveDuration(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

// ValidateNonNegativeFloat rejects negative values.
func ValidateNonNegativeFloat(v float64) error {
	if v < 0 {
		return fmt.Errorf("value must not be negative, got %g", v)
	}
	return nil
}

// ValidateOneOf returns a validator accepting only the listed values.
func ValidateOneOf(allowed ...string) func(string) error {
	return func(v string) error {
		for _, a := range allowed {
			if v == a {
				return nil
			}
		}
		return fmt.Errorf("value %q not in %v", v, allowed)
	}
}
