// Package packager stores produced audio artifacts on the local
// filesystem and derives their public URLs.
package packager

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"

	"briefcast/internal/domain/entity"
	"briefcast/internal/pipeline/steps"
)

// Filesystem writes episode artifacts under a base directory. Writes go
// through a temp file and rename so a crash never leaves a half-written
// artifact at the final path.
type Filesystem struct {
	baseDir       string
	publicBaseURL string
}

// NewFilesystem creates a filesystem packager. publicBaseURL is the URL
// prefix under which baseDir is served; it may be empty, in which case
// episodes carry only a local path.
func NewFilesystem(baseDir, publicBaseURL string) *Filesystem {
	return &Filesystem{baseDir: baseDir, publicBaseURL: publicBaseURL}
}

// Package stores the audio and fills in the episode's artifact fields.
func (f *Filesystem) Package(ctx context.Context, episode *entity.Episode, audio steps.Audio) error {
	if len(audio.Data) == 0 {
		return fmt.Errorf("no audio data to package")
	}

	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("create artifact directory: %w", err)
	}

	filename := fmt.Sprintf("briefing-%s.%s", episode.ProducedAt.UTC().Format("2006-01-02"), audio.Format)
	finalPath := filepath.Join(f.baseDir, filename)

	tmp, err := os.CreateTemp(f.baseDir, ".tmp-briefing-*")
	if err != nil {
		return fmt.Errorf("create artifact temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(audio.Data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), finalPath); err != nil {
		return fmt.Errorf("move artifact into place: %w", err)
	}

	episode.LocalPath = finalPath
	episode.SizeBytes = int64(len(audio.Data))
	if episode.Duration == 0 {
		episode.Duration = audio.Duration
	}
	if f.publicBaseURL != "" {
		artifactURL, err := url.JoinPath(f.publicBaseURL, filename)
		if err != nil {
			return fmt.Errorf("build artifact URL: %w", err)
		}
		episode.ArtifactURL = artifactURL
	}

	slog.Info("artifact stored",
		slog.String("path", finalPath),
		slog.Int64("size_bytes", episode.SizeBytes))
	return nil
}
