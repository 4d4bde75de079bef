package steps

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"briefcast/internal/domain/entity"
	"briefcast/internal/observability/metrics"
	"briefcast/internal/pipeline"
	"briefcast/internal/resilience/classify"
)

// maxConcurrentFetches bounds parallel source fetches.
const maxConcurrentFetches = 5

// FetchStep retrieves candidates from every configured source in parallel.
// A single source failing is a warning; the step fails only when no source
// yields any candidate.
type FetchStep struct {
	fetchers map[string]Fetcher
}

// NewFetchStep creates the fetch step. fetchers maps source kind ("rss",
// "html") to the adapter that handles it.
func NewFetchStep(fetchers map[string]Fetcher) *FetchStep {
	return &FetchStep{fetchers: fetchers}
}

func (s *FetchStep) Name() string { return "fetch" }

func (s *FetchStep) Execute(ctx context.Context, sc *pipeline.StepContext) error {
	sources := sc.Config.Sources
	if len(sources) == 0 {
		return classify.WithKind(classify.KindNetworkError, fmt.Errorf("no sources configured"))
	}

	var (
		mu         sync.Mutex
		candidates []entity.Candidate
		failures   int
	)

	eg, ctx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, maxConcurrentFetches)

	for _, source := range sources {
		eg.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			kind := source.Kind
			if kind == "" {
				kind = "rss"
			}
			fetcher, ok := s.fetchers[kind]
			if !ok {
				mu.Lock()
				failures++
				sc.Result.AddWarning(fmt.Sprintf("source %s: no fetcher for kind %q", source.Name, kind))
				mu.Unlock()
				return nil
			}

			items, err := fetcher.Fetch(ctx, source)
			if err != nil {
				metrics.RecordSourceFetchError(source.Name, string(classify.NewClassifier(nil).Classify(err, "").Kind))
				slog.Warn("source fetch failed",
					slog.String("source", source.Name),
					slog.Any("error", err))
				mu.Lock()
				failures++
				sc.Result.AddWarning(fmt.Sprintf("source %s: %v", source.Name, err))
				mu.Unlock()
				return nil
			}

			metrics.RecordCandidatesFetched(source.Name, len(items))
			slog.Info("source fetched",
				slog.String("source", source.Name),
				slog.Int("candidates", len(items)))

			mu.Lock()
			candidates = append(candidates, items...)
			mu.Unlock()
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return err
	}

	candidates = dedupeByURL(candidates)
	if len(candidates) == 0 {
		return classify.WithKind(classify.KindNetworkError,
			fmt.Errorf("all %d sources failed, no candidates fetched", len(sources)))
	}

	sc.Set(KeyCandidates, candidates)
	sc.Result.Metadata["candidates_fetched"] = len(candidates)
	sc.Result.Metadata["sources_failed"] = failures
	return nil
}

// dedupeByURL keeps the first occurrence per URL, preserving input order.
func dedupeByURL(items []entity.Candidate) []entity.Candidate {
	seen := make(map[string]struct{}, len(items))
	out := items[:0]
	for _, item := range items {
		if _, dup := seen[item.URL]; dup {
			continue
		}
		seen[item.URL] = struct{}{}
		out = append(out, item)
	}
	return out
}
