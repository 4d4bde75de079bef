package steps

import (
	"context"
	"fmt"
	"log/slog"

	"briefcast/internal/domain/entity"
	"briefcast/internal/pipeline"
	"briefcast/internal/resilience/classify"
)

// PublishStep regenerates the public feed with the new episode. Skipped in
// dry-run mode.
type PublishStep struct {
	publisher Publisher
}

func NewPublishStep(publisher Publisher) *PublishStep {
	return &PublishStep{publisher: publisher}
}

func (s *PublishStep) Name() string { return "publish" }

func (s *PublishStep) Execute(ctx context.Context, sc *pipeline.StepContext) error {
	if sc.Config.DryRun {
		slog.Info("dry run: skipping feed publication")
		return nil
	}

	v, ok := sc.Value(KeyEpisode)
	if !ok {
		return fmt.Errorf("no episode available for publication")
	}
	episode := v.(entity.Episode)

	if err := s.publisher.Publish(ctx, episode); err != nil {
		return classify.WithKind(classify.KindFeedGenerationFailed,
			fmt.Errorf("publish feed: %w", err))
	}

	slog.Info("feed published", slog.String("episode", episode.Title))
	return nil
}
