package fetcher

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/sony/gobreaker"
	"golang.org/x/sync/errgroup"

	"briefcast/internal/config"
	"briefcast/internal/domain/entity"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/resilience/circuitbreaker"
	"briefcast/internal/resilience/retry"
)

// RSSFetcher retrieves candidates from RSS/Atom sources using gofeed,
// with circuit breaker and local retry, and optionally enhances thin
// items with full-article content.
type RSSFetcher struct {
	client         *http.Client
	circuitBreaker *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
	enhancer       *ContentEnhancer
	enhancerCfg    ContentFetchConfig
}

// NewRSSFetcher creates an RSS fetcher. enhancer may be nil to disable
// content enhancement.
func NewRSSFetcher(client *http.Client, enhancer *ContentEnhancer, enhancerCfg ContentFetchConfig) *RSSFetcher {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &RSSFetcher{
		client:         client,
		circuitBreaker: circuitbreaker.New(circuitbreaker.FeedFetchConfig()),
		retryConfig:    retry.FeedFetchConfig(),
		enhancer:       enhancer,
		enhancerCfg:    enhancerCfg,
	}
}

// Fetch retrieves and parses one source's feed.
func (f *RSSFetcher) Fetch(ctx context.Context, source config.SourceConfig) ([]entity.Candidate, error) {
	var candidates []entity.Candidate

	retryErr := retry.WithBackoff(ctx, f.retryConfig, func() error {
		cbResult, err := f.circuitBreaker.Execute(func() (interface{}, error) {
			return f.doFetch(ctx, source)
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) {
				slog.Warn("feed fetch circuit breaker open, request rejected",
					slog.String("source", source.Name),
					slog.String("state", f.circuitBreaker.State().String()))
			}
			return err
		}
		candidates = cbResult.([]entity.Candidate)
		return nil
	})
	if retryErr != nil {
		return nil, retryErr
	}

	f.enhance(ctx, candidates)
	return candidates, nil
}

func (f *RSSFetcher) doFetch(ctx context.Context, source config.SourceConfig) ([]entity.Candidate, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = "BriefcastBot"
	fp.Client = f.client

	feed, err := fp.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, err
	}

	candidates := make([]entity.Candidate, 0, len(feed.Items))
	for _, it := range feed.Items {
		content := it.Content
		if content == "" {
			content = it.Description
		}

		c := entity.Candidate{
			Title:          it.Title,
			URL:            it.Link,
			Body:           content,
			SourceName:     source.Name,
			PublishedAtRaw: it.Published,
		}
		if it.PublishedParsed != nil {
			c.PublishedAt = *it.PublishedParsed
		}
		if err := c.Validate(); err != nil {
			slog.Debug("skipping invalid feed item",
				slog.String("source", source.Name),
				slog.Any("error", err))
			continue
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

// enhance replaces thin candidate bodies with full-article content, in
// parallel and best-effort: an enhancement failure keeps the feed body.
func (f *RSSFetcher) enhance(ctx context.Context, candidates []entity.Candidate) {
	if f.enhancer == nil || !f.enhancerCfg.Enabled {
		return
	}

	var mu sync.Mutex
	eg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, f.enhancerCfg.Parallelism)

	for i := range candidates {
		if len(candidates[i].Body) >= f.enhancerCfg.Threshold {
			continue
		}
		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return nil
			}
			defer func() { <-sem }()

			start := time.Now()
			content, err := f.enhancer.FetchContent(ctx, candidates[i].URL)
			if err != nil {
				metrics.RecordSourceFetchError(candidates[i].SourceName, "content_fetch")
				slog.Debug("content enhancement failed, keeping feed body",
					slog.String("url", candidates[i].URL),
					slog.Any("error", err))
				return nil
			}
			slog.Debug("candidate content enhanced",
				slog.String("url", candidates[i].URL),
				slog.Int("chars", len(content)),
				slog.Duration("elapsed", time.Since(start)))

			mu.Lock()
			candidates[i].Body = content
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()
}
