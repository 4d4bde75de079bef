package steps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"briefcast/internal/domain/entity"
	"briefcast/internal/pipeline"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/scoring"
)

// PackageStep assembles the episode from the script and audio, then hands
// it to the packager to store the artifact. Skipped in dry-run mode.
type PackageStep struct {
	packager Packager
	now      func() time.Time
}

func NewPackageStep(packager Packager) *PackageStep {
	return &PackageStep{packager: packager, now: time.Now}
}

func (s *PackageStep) Name() string { return "package" }

func (s *PackageStep) Execute(ctx context.Context, sc *pipeline.StepContext) error {
	if sc.Config.DryRun {
		slog.Info("dry run: skipping packaging")
		return nil
	}

	sv, ok := sc.Value(KeyScript)
	if !ok {
		return fmt.Errorf("no script available for packaging")
	}
	script := sv.(Script)

	av, ok := sc.Value(KeyAudio)
	if !ok {
		return fmt.Errorf("no audio available for packaging")
	}
	audio := av.(Audio)

	iv, _ := sc.Value(KeySelected)
	selected, _ := iv.([]scoring.ScoredItem)
	titles := make([]string, len(selected))
	for i, item := range selected {
		titles[i] = item.Candidate.Title
	}

	episode := entity.Episode{
		Title:       script.Title,
		Duration:    audio.Duration,
		StoryTitles: titles,
		ProducedAt:  s.now(),
	}
	if err := s.packager.Package(ctx, &episode, audio); err != nil {
		return classify.WithKind(classify.KindPackagingUploadFailed,
			fmt.Errorf("package episode: %w", err))
	}

	slog.Info("episode packaged",
		slog.String("path", episode.LocalPath),
		slog.String("url", episode.ArtifactURL),
		slog.Int64("size_bytes", episode.SizeBytes))

	sc.Set(KeyEpisode, episode)
	sc.Result.Metadata["episode_url"] = episode.ArtifactURL
	return nil
}
