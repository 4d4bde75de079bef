package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"briefcast/internal/app"
	"briefcast/internal/config"
	workerPkg "briefcast/internal/infra/worker"
	"briefcast/internal/observability/logging"
	"briefcast/internal/observability/tracing"
	"briefcast/internal/usecase/produce"
)

const version = "0.3.0"

func main() {
	_ = godotenv.Load()
	slog.SetDefault(logging.NewLogger())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(ctx, "briefcast-worker", version)
	if err != nil {
		slog.Warn("tracing disabled", slog.Any("error", err))
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracing(shutdownCtx); err != nil {
				slog.Error("tracing shutdown failed", slog.Any("error", err))
			}
		}()
	}

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "briefcast.yaml"
	}
	cfg, warnings, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	for _, w := range warnings {
		slog.Warn("configuration warning", slog.String("warning", w))
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			slog.Error("invalid configuration", slog.Any("error", e))
		}
		os.Exit(1)
	}

	workerMetrics := workerPkg.NewMetrics()
	workerCfg := workerPkg.LoadConfigFromEnv(workerMetrics)
	slog.Info("worker configuration loaded",
		slog.Int("health_port", workerCfg.HealthPort),
		slog.Int("metrics_port", workerCfg.MetricsPort),
		slog.Duration("prune_after", workerCfg.PruneAfter),
		slog.String("cron_schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))

	svc, cleanup, err := app.BuildService(cfg)
	if err != nil {
		slog.Error("failed to build production service", slog.Any("error", err))
		os.Exit(1)
	}
	defer cleanup()

	startMetricsServer(ctx, workerCfg.MetricsPort)

	healthServer := workerPkg.NewHealthServer(addr(workerCfg.HealthPort))
	go func() {
		if err := healthServer.Start(ctx); err != nil && err != http.ErrServerClosed {
			slog.Error("health server failed", slog.Any("error", err))
		}
	}()

	runScheduler(ctx, cfg, workerCfg, svc, workerMetrics, healthServer)
}

// runScheduler installs the production cron job plus daily ledger
// housekeeping and blocks until the context is canceled.
func runScheduler(
	ctx context.Context,
	cfg *config.Workflow,
	workerCfg workerPkg.Config,
	svc *produce.Service,
	metrics *workerPkg.Metrics,
	healthServer *workerPkg.HealthServer,
) {
	c := cron.New(cron.WithLocation(cfg.Location()))

	_, err := c.AddFunc(cfg.CronSchedule, func() {
		runScheduledProduction(ctx, cfg, svc, metrics)
	})
	if err != nil {
		slog.Error("failed to add production job", slog.Any("error", err))
		os.Exit(1)
	}

	_, err = c.AddFunc("30 3 * * *", func() {
		pruneLedger(ctx, svc, workerCfg, metrics)
	})
	if err != nil {
		slog.Error("failed to add housekeeping job", slog.Any("error", err))
		os.Exit(1)
	}

	c.Start()
	healthServer.SetReady(true)
	slog.Info("worker started",
		slog.String("schedule", cfg.CronSchedule),
		slog.String("timezone", cfg.Timezone))

	<-ctx.Done()
	healthServer.SetReady(false)

	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(30 * time.Second):
		slog.Warn("cron jobs did not finish within shutdown grace period")
	}
	slog.Info("worker stopped")
}

// runScheduledProduction executes one run under the configured timeout.
func runScheduledProduction(ctx context.Context, cfg *config.Workflow, svc *produce.Service, metrics *workerPkg.Metrics) {
	start := time.Now()
	slog.Info("scheduled production run starting")

	runCtx := ctx
	if cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, cfg.RunTimeout)
		defer cancel()
	}

	result, err := svc.Run(runCtx)
	elapsed := time.Since(start)
	metrics.RecordRunDuration(elapsed.Seconds())

	switch {
	case err == nil:
		metrics.RecordRun("success")
		metrics.RecordLastSuccess()
		stories := 0
		if result != nil {
			if v, ok := result.Metadata["stories_selected"].(int); ok {
				stories = v
			}
		}
		slog.Info("scheduled production run completed",
			slog.Int("stories", stories),
			slog.Duration("duration", elapsed))
	case produce.IsRejection(err):
		metrics.RecordRun("skipped")
		slog.Warn("scheduled production run not admitted", slog.Any("reason", err))
	default:
		metrics.RecordRun("failure")
		slog.Error("scheduled production run failed",
			slog.Duration("duration", elapsed),
			slog.Any("error", err))
	}
}

// pruneLedger removes resolved records older than the retention window.
func pruneLedger(ctx context.Context, svc *produce.Service, workerCfg workerPkg.Config, metrics *workerPkg.Metrics) {
	pruned, err := svc.PruneLedger(ctx, workerCfg.PruneAfter)
	if err != nil {
		slog.Error("ledger prune failed", slog.Any("error", err))
		return
	}
	metrics.RecordPruned(pruned)
	if pruned > 0 {
		slog.Info("ledger pruned", slog.Int("records", pruned))
	}
}
