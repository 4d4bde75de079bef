package steps

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"briefcast/internal/domain/entity"
	"briefcast/internal/pipeline"
)

// CleanupStep removes partial artifacts after a failed run: the episode
// file if one was written before the failure, and any leftover temp files
// in the artifact directory. It runs best-effort under the runner's
// non-cancelable cleanup context.
type CleanupStep struct{}

func NewCleanupStep() *CleanupStep { return &CleanupStep{} }

func (s *CleanupStep) Name() string { return "cleanup" }

func (s *CleanupStep) Execute(ctx context.Context, sc *pipeline.StepContext) error {
	if v, ok := sc.Value(KeyEpisode); ok {
		episode := v.(entity.Episode)
		if episode.LocalPath != "" {
			if err := os.Remove(episode.LocalPath); err != nil && !os.IsNotExist(err) {
				slog.Warn("failed to remove partial episode artifact",
					slog.String("path", episode.LocalPath),
					slog.Any("error", err))
			} else {
				slog.Info("removed partial episode artifact",
					slog.String("path", episode.LocalPath))
			}
		}
	}

	dir := sc.Config.ArtifactDir
	if dir == "" {
		return nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), ".tmp-") {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := os.Remove(path); err != nil {
			slog.Warn("failed to remove temp file",
				slog.String("path", path),
				slog.Any("error", err))
		}
	}
	return nil
}
