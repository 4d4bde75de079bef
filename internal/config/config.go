// Package config defines the workflow configuration for a briefing
// production run: sources, selection size, retry overrides, spend limits,
// artifact locations, and the comparison-mode settings. Configuration is
// loaded from a YAML profile, then overridden by environment variables
// with fail-open fallback semantics.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	pkgconfig "briefcast/internal/pkg/config"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/scoring"
)

// SourceConfig describes one upstream content source. Kind selects the
// fetch adapter: "rss" for feed URLs, "html" for index pages that need
// scraping.
type SourceConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
	Kind string `yaml:"kind"`
}

// ComparisonConfig controls multi-variant comparison runs.
type ComparisonConfig struct {
	// Mode is "single", "pairwise", or "all".
	Mode       string `yaml:"mode"`
	MaxWorkers int    `yaml:"max_workers"`

	// VariantTimeout bounds each variant's pipeline run.
	VariantTimeout time.Duration `yaml:"variant_timeout"`

	// Weights for the normalized composite quality score.
	QualityWeight float64 `yaml:"quality_weight"`
	CostWeight    float64 `yaml:"cost_weight"`
	LatencyWeight float64 `yaml:"latency_weight"`
}

// Workflow is the full configuration for one production run.
type Workflow struct {
	Enabled bool `yaml:"enabled"`
	DryRun  bool `yaml:"dry_run"`

	// TargetItemCount is how many stories the selection stage keeps.
	TargetItemCount int `yaml:"target_item_count"`

	// MonthlyCostLimit is the admission budget in USD; zero disables the
	// spend check.
	MonthlyCostLimit float64 `yaml:"monthly_cost_limit"`

	// RetryOverrides replaces the default max-retry count per error kind.
	RetryOverrides map[string]int `yaml:"retry_overrides"`

	CronSchedule string        `yaml:"cron_schedule"`
	Timezone     string        `yaml:"timezone"`
	RunTimeout   time.Duration `yaml:"run_timeout"`

	LedgerPath     string `yaml:"ledger_path"`
	MetricsLogPath string `yaml:"metrics_log_path"`
	SpendPath      string `yaml:"spend_path"`
	ArtifactDir    string `yaml:"artifact_dir"`
	FeedPath       string `yaml:"feed_path"`
	PublicBaseURL  string `yaml:"public_base_url"`
	WebhookURL     string `yaml:"webhook_url"`

	// ScriptProvider selects the scriptwriter backend: "claude" or "openai".
	ScriptProvider string `yaml:"script_provider"`

	Sources    []SourceConfig   `yaml:"sources"`
	Scoring    scoring.Config   `yaml:"scoring"`
	Comparison ComparisonConfig `yaml:"comparison"`
}

// Default returns the baseline workflow configuration.
func Default() *Workflow {
	return &Workflow{
		Enabled:          true,
		TargetItemCount:  5,
		MonthlyCostLimit: 50.0,
		CronSchedule:     "0 6 * * *",
		Timezone:         "UTC",
		RunTimeout:       30 * time.Minute,
		LedgerPath:       "data/ledger.json",
		MetricsLogPath:   "data/runs.ndjson",
		SpendPath:        "data/spend.json",
		ArtifactDir:      "data/episodes",
		FeedPath:         "data/feed.xml",
		ScriptProvider:   "claude",
		Scoring:          scoring.DefaultConfig(),
		Comparison: ComparisonConfig{
			Mode:           "single",
			MaxWorkers:     4,
			VariantTimeout: 10 * time.Minute,
			QualityWeight:  0.5,
			CostWeight:     0.3,
			LatencyWeight:  0.2,
		},
	}
}

// Load reads a YAML profile from path and merges it over the defaults.
// A missing file is not an error; the defaults apply. Env overrides are
// applied last, with warnings collected rather than returned as errors.
func Load(path string) (*Workflow, []string, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	warnings := cfg.applyEnvOverrides()
	return cfg, warnings, nil
}

// applyEnvOverrides layers environment variables over the loaded profile.
// Invalid values keep the profile value and produce a warning.
func (c *Workflow) applyEnvOverrides() []string {
	var warnings []string

	collect := func(r pkgconfig.LoadResult) interface{} {
		warnings = append(warnings, r.Warnings...)
		return r.Value
	}

	c.Enabled = collect(pkgconfig.LoadEnvBool("PIPELINE_ENABLED", c.Enabled)).(bool)
	c.DryRun = collect(pkgconfig.LoadEnvBool("DRY_RUN", c.DryRun)).(bool)
	c.TargetItemCount = collect(pkgconfig.LoadEnvInt("TARGET_ITEM_COUNT", c.TargetItemCount, pkgconfig.ValidateIntRange(1, 50))).(int)
	c.MonthlyCostLimit = collect(pkgconfig.LoadEnvFloat("MONTHLY_COST_LIMIT", c.MonthlyCostLimit, pkgconfig.ValidateNonNegativeFloat)).(float64)
	c.CronSchedule = collect(pkgconfig.LoadEnvWithFallback("CRON_SCHEDULE", c.CronSchedule, pkgconfig.ValidateCronSchedule)).(string)
	c.Timezone = collect(pkgconfig.LoadEnvWithFallback("TIMEZONE", c.Timezone, pkgconfig.ValidateTimezone)).(string)
	c.RunTimeout = collect(pkgconfig.LoadEnvDuration("RUN_TIMEOUT", c.RunTimeout, pkgconfig.ValidatePositiveDuration)).(time.Duration)
	c.Comparison.Mode = collect(pkgconfig.LoadEnvWithFallback("COMPARISON_MODE", c.Comparison.Mode, pkgconfig.ValidateOneOf("single", "pairwise", "all"))).(string)
	c.Comparison.MaxWorkers = collect(pkgconfig.LoadEnvInt("COMPARISON_WORKERS", c.Comparison.MaxWorkers, pkgconfig.ValidateIntRange(1, 32))).(int)
	c.ScriptProvider = collect(pkgconfig.LoadEnvWithFallback("SCRIPT_PROVIDER", c.ScriptProvider, pkgconfig.ValidateOneOf("claude", "openai"))).(string)

	c.LedgerPath = pkgconfig.LoadEnvString("LEDGER_PATH", c.LedgerPath)
	c.MetricsLogPath = pkgconfig.LoadEnvString("METRICS_LOG_PATH", c.MetricsLogPath)
	c.WebhookURL = pkgconfig.LoadEnvString("WEBHOOK_URL", c.WebhookURL)
	c.PublicBaseURL = pkgconfig.LoadEnvString("PUBLIC_BASE_URL", c.PublicBaseURL)

	return warnings
}

// Validate checks the fully merged configuration and returns every problem
// found, not just the first.
func (c *Workflow) Validate() []error {
	var errs []error

	if c.TargetItemCount < 1 {
		errs = append(errs, fmt.Errorf("target_item_count must be at least 1, got %d", c.TargetItemCount))
	}
	if c.MonthlyCostLimit < 0 {
		errs = append(errs, fmt.Errorf("monthly_cost_limit must not be negative, got %g", c.MonthlyCostLimit))
	}
	if err := pkgconfig.ValidateCronSchedule(c.CronSchedule); err != nil {
		errs = append(errs, fmt.Errorf("cron_schedule: %w", err))
	}
	if err := pkgconfig.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("timezone: %w", err))
	}
	if c.RunTimeout <= 0 {
		errs = append(errs, fmt.Errorf("run_timeout must be positive, got %s", c.RunTimeout))
	}
	if len(c.Sources) == 0 {
		errs = append(errs, fmt.Errorf("at least one source is required"))
	}
	for i, s := range c.Sources {
		if s.Name == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: name is required", i))
		}
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("sources[%d]: url is required", i))
		}
		switch s.Kind {
		case "", "rss", "html":
		default:
			errs = append(errs, fmt.Errorf("sources[%d]: unknown kind %q", i, s.Kind))
		}
	}
	for kind, n := range c.RetryOverrides {
		if !classify.Kind(kind).Valid() {
			errs = append(errs, fmt.Errorf("retry_overrides: unknown error kind %q", kind))
		}
		if n < 0 {
			errs = append(errs, fmt.Errorf("retry_overrides[%s]: must not be negative, got %d", kind, n))
		}
	}
	switch c.Comparison.Mode {
	case "single", "pairwise", "all":
	default:
		errs = append(errs, fmt.Errorf("comparison.mode must be single, pairwise or all, got %q", c.Comparison.Mode))
	}
	if c.Comparison.MaxWorkers < 1 {
		errs = append(errs, fmt.Errorf("comparison.max_workers must be at least 1, got %d", c.Comparison.MaxWorkers))
	}
	if sum := c.Comparison.QualityWeight + c.Comparison.CostWeight + c.Comparison.LatencyWeight; math.Abs(sum-1.0) > 1e-9 {
		errs = append(errs, fmt.Errorf("comparison weights must sum to 1.0, got %g", sum))
	}
	switch c.ScriptProvider {
	case "claude", "openai":
	default:
		errs = append(errs, fmt.Errorf("script_provider must be claude or openai, got %q", c.ScriptProvider))
	}

	return errs
}

// KindOverrides converts the string-keyed retry overrides into the typed
// map the classifier consumes. Validate is expected to have run first.
func (c *Workflow) KindOverrides() map[classify.Kind]int {
	if len(c.RetryOverrides) == 0 {
		return nil
	}
	out := make(map[classify.Kind]int, len(c.RetryOverrides))
	for k, v := range c.RetryOverrides {
		out[classify.Kind(k)] = v
	}
	return out
}

// Location resolves the configured timezone, falling back to UTC.
func (c *Workflow) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
