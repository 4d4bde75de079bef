// Package compare runs multiple pipeline variants concurrently and ranks
// their outcomes. Variants run under a bounded worker pool with a
// per-variant timeout; a failed variant is retained in the report but
// excluded from the aggregate statistics.
package compare

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"briefcast/internal/config"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/scoring"
)

// Variant is one pipeline configuration under comparison.
type Variant struct {
	Name   string
	Config *config.Workflow
}

// Outcome is what one variant run produces for scoring purposes.
type Outcome struct {
	Quality     float64
	CostDollars float64
	ItemCount   int
}

// RunFunc executes one variant and returns its outcome.
type RunFunc func(ctx context.Context, v Variant) (Outcome, error)

// VariantResult is one variant's recorded result.
type VariantResult struct {
	Name      string        `json:"name"`
	Err       string        `json:"error,omitempty"`
	Quality   float64       `json:"quality"`
	Cost      float64       `json:"cost"`
	Latency   time.Duration `json:"latency"`
	Composite float64       `json:"composite"`
	Succeeded bool          `json:"succeeded"`
}

// Scheduler fans variant runs out across a bounded worker pool.
type Scheduler struct {
	maxWorkers     int
	variantTimeout time.Duration
	weights        Weights
}

// NewScheduler creates a scheduler from the comparison configuration.
func NewScheduler(cfg config.ComparisonConfig) *Scheduler {
	workers := cfg.MaxWorkers
	if workers < 1 {
		workers = 1
	}
	return &Scheduler{
		maxWorkers:     workers,
		variantTimeout: cfg.VariantTimeout,
		weights: Weights{
			Quality: cfg.QualityWeight,
			Cost:    cfg.CostWeight,
			Latency: cfg.LatencyWeight,
		},
	}
}

// Run executes every variant and returns the ranked report. The worker
// pool is bounded to min(len(variants), maxWorkers); each variant gets its
// own timeout so one stuck run cannot hold the whole comparison. Variant
// failures do not abort the remaining variants.
func (s *Scheduler) Run(ctx context.Context, variants []Variant, run RunFunc) (*Report, error) {
	if len(variants) == 0 {
		return nil, fmt.Errorf("no variants to compare")
	}

	results := make([]VariantResult, len(variants))
	var mu sync.Mutex

	eg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, s.maxWorkers)

	for i, v := range variants {
		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			res := s.runVariant(ctx, v, run)
			metrics.RecordComparisonVariant(res.Succeeded)

			mu.Lock()
			results[i] = res
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("comparison aborted: %w", err)
	}

	return buildReport(results, s.weights), nil
}

func (s *Scheduler) runVariant(ctx context.Context, v Variant, run RunFunc) VariantResult {
	if s.variantTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.variantTimeout)
		defer cancel()
	}

	start := time.Now()
	outcome, err := run(ctx, v)
	latency := time.Since(start)

	if err != nil {
		slog.Warn("comparison variant failed",
			slog.String("variant", v.Name),
			slog.Duration("latency", latency),
			slog.Any("error", err))
		return VariantResult{Name: v.Name, Err: err.Error(), Latency: latency}
	}

	slog.Info("comparison variant finished",
		slog.String("variant", v.Name),
		slog.Float64("quality", outcome.Quality),
		slog.Float64("cost", outcome.CostDollars),
		slog.Duration("latency", latency))

	return VariantResult{
		Name:      v.Name,
		Quality:   outcome.Quality,
		Cost:      outcome.CostDollars,
		Latency:   latency,
		Succeeded: true,
	}
}

// ExpandVariants derives the variant set for a comparison mode from the
// base configuration. Mode "single" runs the base config alone; "pairwise"
// adds the alternate script provider; "all" crosses providers with the
// default and configured scoring profiles.
func ExpandVariants(base *config.Workflow) []Variant {
	switch base.Comparison.Mode {
	case "pairwise":
		alt := *base
		alt.ScriptProvider = otherProvider(base.ScriptProvider)
		return []Variant{
			{Name: base.ScriptProvider, Config: base},
			{Name: alt.ScriptProvider, Config: &alt},
		}
	case "all":
		variants := make([]Variant, 0, 4)
		for _, provider := range []string{"claude", "openai"} {
			cfgScored := *base
			cfgScored.ScriptProvider = provider
			variants = append(variants, Variant{
				Name:   provider + "-configured",
				Config: &cfgScored,
			})

			cfgDefault := cfgScored
			cfgDefault.Scoring = defaultScoring()
			variants = append(variants, Variant{
				Name:   provider + "-default",
				Config: &cfgDefault,
			})
		}
		return variants
	default:
		return []Variant{{Name: base.ScriptProvider, Config: base}}
	}
}

func otherProvider(p string) string {
	if p == "claude" {
		return "openai"
	}
	return "claude"
}

func defaultScoring() scoring.Config {
	return scoring.DefaultConfig()
}
