// Package app wires the production pipeline from configuration. The CLI
// and the worker both assemble their services here so the step chain and
// collaborator setup stay identical across entrypoints.
package app

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"briefcast/internal/admission"
	"briefcast/internal/config"
	"briefcast/internal/infra/db"
	"briefcast/internal/infra/fetcher"
	"briefcast/internal/infra/notifier"
	"briefcast/internal/infra/packager"
	"briefcast/internal/infra/publisher"
	"briefcast/internal/infra/scraper"
	"briefcast/internal/infra/scriptwriter"
	"briefcast/internal/infra/synthesizer"
	"briefcast/internal/ledger"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/pipeline"
	"briefcast/internal/pipeline/steps"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/fallback"
	"briefcast/internal/resilience/retry"
	"briefcast/internal/scoring"
	"briefcast/internal/usecase/produce"
)

// Broadcaster is the one collaborator shared between the pipeline (episode
// announcements) and the retry scheduler (operator alerts).
type Broadcaster interface {
	steps.Broadcaster
	retry.Notifier
	fallback.DegradedNotifier
}

// BuildService assembles a production service from cfg. The returned
// cleanup function closes the ledger's database connection when one was
// opened; call it on shutdown.
func BuildService(cfg *config.Workflow) (*produce.Service, func(), error) {
	led, closeLedger, err := OpenLedger(cfg)
	if err != nil {
		return nil, nil, err
	}

	runLog, err := metrics.NewRunLog(cfg.MetricsLogPath)
	if err != nil {
		closeLedger()
		return nil, nil, fmt.Errorf("open run log: %w", err)
	}

	broadcaster := BuildBroadcaster(cfg)
	dispatcher := fallback.NewDispatcher(broadcaster)
	registerFallbacks(dispatcher)

	classifier := classify.NewClassifier(cfg.KindOverrides())
	scheduler := retry.NewScheduler(led, dispatcher, broadcaster)
	gate := admission.NewGate(cfg.Enabled, cfg.MonthlyCostLimit, cfg.SpendPath)

	svc := produce.NewService(
		cfg,
		gate,
		NewRunnerFactory(broadcaster),
		classifier,
		scheduler,
		led,
		runLog,
		produce.WithVariantRunner(NewVariantRunnerFactory()),
	)
	return svc, closeLedger, nil
}

// OpenLedger selects the ledger backend: Postgres when DATABASE_URL is
// set, otherwise the single-document file ledger.
func OpenLedger(cfg *config.Workflow) (ledger.Ledger, func(), error) {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		database, err := db.Open(dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("open ledger database: %w", err)
		}
		if err := db.MigrateUp(database); err != nil {
			_ = database.Close()
			return nil, nil, fmt.Errorf("migrate ledger schema: %w", err)
		}
		slog.Info("using postgres ledger")
		closer := func() {
			if err := database.Close(); err != nil {
				slog.Error("failed to close database", slog.Any("error", err))
			}
		}
		return ledger.NewPostgresLedger(database), closer, nil
	}

	fl, err := ledger.NewFileLedger(cfg.LedgerPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open file ledger: %w", err)
	}
	slog.Info("using file ledger", slog.String("path", cfg.LedgerPath))
	return fl, func() {}, nil
}

// BuildBroadcaster returns the webhook notifier when a webhook URL is
// configured, otherwise a no-op.
func BuildBroadcaster(cfg *config.Workflow) Broadcaster {
	if cfg.WebhookURL == "" {
		slog.Info("webhook notifications disabled")
		return notifier.NewNoop()
	}
	slog.Info("webhook notifications enabled")
	return notifier.NewWebhook(notifier.WebhookConfig{
		Enabled:    true,
		WebhookURL: cfg.WebhookURL,
	})
}

// NewRunnerFactory returns a factory building the full step chain for a
// configuration. Comparison variants call it with their own configs, so
// everything config-dependent is constructed inside the closure.
func NewRunnerFactory(broadcaster steps.Broadcaster) produce.RunnerFactory {
	return func(cfg *config.Workflow) *pipeline.Runner {
		engine := scoring.NewEngine(cfg.Scoring)
		pack := packager.NewFilesystem(cfg.ArtifactDir, cfg.PublicBaseURL)
		feed := publisher.NewFeed(cfg.FeedPath, publisher.FeedConfig{
			Title:       "Briefcast",
			Link:        cfg.PublicBaseURL,
			Description: "Daily audio news briefing",
		})

		chain := []pipeline.Step{
			steps.NewFetchStep(buildFetchers()),
			steps.NewSelectStep(engine),
			steps.NewComposeStep(buildWriters(cfg)),
			steps.NewSynthesizeStep(synthesizer.NewOpenAITTS(os.Getenv("OPENAI_API_KEY"))),
			steps.NewPackageStep(pack),
			steps.NewPublishStep(feed),
			steps.NewNotifyStep(broadcaster),
		}
		return pipeline.NewRunner(chain, steps.NewCleanupStep())
	}
}

// NewVariantRunnerFactory returns the factory comparison variants run
// under: fetch, select, compose, and nothing further. Variants measure
// script quality, cost, and latency; leaving synthesis, packaging,
// publishing, and broadcasting out keeps a comparison from shipping
// episodes or spending on audio per variant.
func NewVariantRunnerFactory() produce.RunnerFactory {
	return func(cfg *config.Workflow) *pipeline.Runner {
		chain := []pipeline.Step{
			steps.NewFetchStep(buildFetchers()),
			steps.NewSelectStep(scoring.NewEngine(cfg.Scoring)),
			steps.NewComposeStep(buildWriters(cfg)),
		}
		return pipeline.NewRunner(chain, nil)
	}
}

// buildFetchers constructs the per-kind source fetchers. RSS and HTML
// sources share one content enhancer so the readability breaker state is
// common to both.
func buildFetchers() map[string]steps.Fetcher {
	enhancerCfg, warnings, err := fetcher.LoadContentFetchConfig()
	for _, w := range warnings {
		slog.Warn("content fetch config", slog.String("warning", w))
	}
	if err != nil {
		slog.Warn("content fetching disabled due to configuration error", slog.Any("error", err))
		enhancerCfg = fetcher.DefaultContentFetchConfig()
		enhancerCfg.Enabled = false
	}

	var enhancer *fetcher.ContentEnhancer
	if enhancerCfg.Enabled {
		enhancer = fetcher.NewContentEnhancer(enhancerCfg)
		slog.Info("content fetching enabled",
			slog.Int("threshold", enhancerCfg.Threshold),
			slog.Int("parallelism", enhancerCfg.Parallelism),
			slog.Duration("timeout", enhancerCfg.Timeout))
	}

	fetchers := map[string]steps.Fetcher{
		"rss": fetcher.NewRSSFetcher(newHTTPClient(30*time.Second), enhancer, enhancerCfg),
	}
	if enhancer != nil {
		fetchers["html"] = scraper.NewHTMLIndexScraper(newHTTPClient(10*time.Second), enhancer)
	} else {
		fetchers["html"] = scraper.NewHTMLIndexScraper(newHTTPClient(10*time.Second), nil)
	}
	return fetchers
}

// buildWriters constructs the script providers keyed by name. A provider
// whose API key is missing degrades to the local headline writer with a
// warning instead of failing mid-pipeline.
func buildWriters(cfg *config.Workflow) map[string]steps.Scriptwriter {
	writers := make(map[string]steps.Scriptwriter)

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		writers["claude"] = scriptwriter.NewClaude(key)
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		scriptCfg, err := scriptwriter.LoadOpenAIConfig()
		if err != nil {
			slog.Warn("invalid openai script config, using defaults", slog.Any("error", err))
		}
		writers["openai"] = scriptwriter.NewOpenAI(key, scriptCfg)
	}

	if _, ok := writers[cfg.ScriptProvider]; !ok {
		slog.Warn("script provider has no API key, falling back to local writer",
			slog.String("provider", cfg.ScriptProvider))
		writers[cfg.ScriptProvider] = scriptwriter.NewNoop()
	}
	return writers
}

// registerFallbacks binds compensating actions to the kinds that have a
// meaningful one. Everything else takes the degraded-mode default.
func registerFallbacks(d *fallback.Dispatcher) {
	d.Register(classify.KindQuotaExceeded, func(ctx context.Context, record *retry.ErrorRecord) error {
		slog.Warn("provider quota exhausted, runs will resume when the budget resets",
			slog.String("record_id", record.ID()))
		return nil
	})
	d.Register(classify.KindBroadcastFailed, func(ctx context.Context, record *retry.ErrorRecord) error {
		// The episode is already published; a missed announcement only
		// costs visibility.
		slog.Warn("broadcast abandoned, episode remains available in the feed",
			slog.String("record_id", record.ID()))
		return nil
	})
}

// newHTTPClient creates an HTTP client with connection pooling and TLS
// 1.2+ enforced.
func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		},
	}
}
