package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"briefcast/internal/app"
	"briefcast/internal/compare"
	"briefcast/internal/config"
	"briefcast/internal/usecase/produce"
)

var dryRun bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute one production run",
	Long:  "Runs the full pipeline once: fetch, select, compose, synthesize, package, publish, notify. With --dry-run the selection is reported without calling paid providers or publishing.",
	RunE:  runProduction,
}

func init() {
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "select and report stories without synthesis or publishing")
}

func runProduction(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if dryRun {
		cfg.DryRun = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	svc, cleanup, err := app.BuildService(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Comparison.Mode != "" && cfg.Comparison.Mode != "single" {
		return runComparison(ctx, cfg, svc)
	}

	result, err := svc.Run(ctx)
	if err != nil {
		if produce.IsRejection(err) {
			// A gated run is a skip, not a failure.
			slog.Warn("run not admitted", slog.Any("reason", err))
			return nil
		}
		return err
	}

	fmt.Printf("run succeeded: %d stories", intMeta(result.Metadata, "stories_selected"))
	if url, ok := result.Metadata["episode_url"].(string); ok && url != "" {
		fmt.Printf(", episode at %s", url)
	}
	fmt.Println()
	return nil
}

func runComparison(ctx context.Context, cfg *config.Workflow, svc *produce.Service) error {
	variants := compare.ExpandVariants(cfg)
	scheduler := compare.NewScheduler(cfg.Comparison)

	slog.Info("comparison run starting",
		slog.String("mode", cfg.Comparison.Mode),
		slog.Int("variants", len(variants)))

	report, err := scheduler.Run(ctx, variants, svc.RunVariant)
	if err != nil {
		return err
	}

	for _, res := range report.Results {
		if !res.Succeeded {
			fmt.Printf("%-20s failed: %s\n", res.Name, res.Err)
			continue
		}
		fmt.Printf("%-20s composite=%.3f quality=%.1f cost=$%.4f latency=%s\n",
			res.Name, res.Composite, res.Quality, res.Cost, res.Latency.Round(time.Millisecond))
	}
	if report.Best != "" {
		fmt.Printf("best variant: %s\n", report.Best)
	}
	return nil
}

func intMeta(md map[string]interface{}, key string) int {
	if v, ok := md[key].(int); ok {
		return v
	}
	return 0
}
