// Package worker holds the scheduled-runner support pieces: its own
// configuration, the health endpoints, and scheduler metrics.
package worker

import (
	"fmt"
	"log/slog"
	"time"

	pkgconfig "briefcast/internal/pkg/config"
)

// Config controls the worker process itself. The pipeline's own settings
// (schedule, sources, budget) live in the workflow configuration; this
// only covers ports and housekeeping.
type Config struct {
	// HealthPort serves the liveness and readiness probes.
	HealthPort int

	// MetricsPort serves the Prometheus scrape endpoint.
	MetricsPort int

	// PruneAfter is how long resolved ledger records are kept before the
	// daily housekeeping pass deletes them.
	PruneAfter time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		HealthPort:  9091,
		MetricsPort: 9090,
		PruneAfter:  30 * 24 * time.Hour,
	}
}

// Validate checks the configuration values.
func (c *Config) Validate() error {
	var errs []error
	if err := pkgconfig.ValidateIntRange(1024, 65535)(c.HealthPort); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := pkgconfig.ValidateIntRange(1024, 65535)(c.MetricsPort); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}
	if err := pkgconfig.ValidatePositiveDuration(c.PruneAfter); err != nil {
		errs = append(errs, fmt.Errorf("prune after: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("validation failed: %v", errs)
	}
	return nil
}

// LoadConfigFromEnv loads the worker configuration fail-open: an invalid
// value logs a warning and keeps the default, so the worker always starts.
func LoadConfigFromEnv(metrics *Metrics) Config {
	cfg := DefaultConfig()
	fallbackApplied := false

	collect := func(field string, r pkgconfig.LoadResult) interface{} {
		if r.FallbackApplied {
			fallbackApplied = true
			metrics.RecordValidationError(field)
			for _, warning := range r.Warnings {
				slog.Warn("worker configuration fallback applied",
					slog.String("field", field),
					slog.String("warning", warning))
			}
		}
		return r.Value
	}

	portRange := pkgconfig.ValidateIntRange(1024, 65535)
	cfg.HealthPort = collect("health_port",
		pkgconfig.LoadEnvInt("WORKER_HEALTH_PORT", cfg.HealthPort, portRange)).(int)
	cfg.MetricsPort = collect("metrics_port",
		pkgconfig.LoadEnvInt("METRICS_PORT", cfg.MetricsPort, portRange)).(int)
	cfg.PruneAfter = collect("prune_after",
		pkgconfig.LoadEnvDuration("LEDGER_PRUNE_AFTER", cfg.PruneAfter, pkgconfig.ValidatePositiveDuration)).(time.Duration)

	metrics.SetFallbackActive(fallbackApplied)
	metrics.RecordConfigLoad()
	return cfg
}
