package steps

import (
	"context"
	"fmt"
	"log/slog"

	"briefcast/internal/domain/entity"
	"briefcast/internal/pipeline"
	"briefcast/internal/resilience/classify"
)

// NotifyStep announces the published episode to subscribers. Skipped in
// dry-run mode.
type NotifyStep struct {
	broadcaster Broadcaster
}

func NewNotifyStep(broadcaster Broadcaster) *NotifyStep {
	return &NotifyStep{broadcaster: broadcaster}
}

func (s *NotifyStep) Name() string { return "notify" }

func (s *NotifyStep) Execute(ctx context.Context, sc *pipeline.StepContext) error {
	if sc.Config.DryRun {
		slog.Info("dry run: skipping broadcast")
		return nil
	}

	v, ok := sc.Value(KeyEpisode)
	if !ok {
		return fmt.Errorf("no episode available for broadcast")
	}
	episode := v.(entity.Episode)

	if err := s.broadcaster.Broadcast(ctx, episode); err != nil {
		return classify.WithKind(classify.KindBroadcastFailed,
			fmt.Errorf("broadcast episode: %w", err))
	}

	slog.Info("episode broadcast", slog.String("episode", episode.Title))
	return nil
}
