package packager_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"briefcast/internal/domain/entity"
	"briefcast/internal/infra/packager"
	"briefcast/internal/pipeline/steps"
)

func testAudio() steps.Audio {
	return steps.Audio{
		Data:     []byte("mp3 bytes"),
		Format:   "mp3",
		Duration: 3 * time.Minute,
	}
}

func TestPackageStoresArtifact(t *testing.T) {
	dir := t.TempDir()
	f := packager.NewFilesystem(dir, "https://cdn.example.com/episodes")

	episode := entity.Episode{ProducedAt: time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)}
	if err := f.Package(context.Background(), &episode, testAudio()); err != nil {
		t.Fatalf("Package err=%v", err)
	}

	wantPath := filepath.Join(dir, "briefing-2026-03-01.mp3")
	if episode.LocalPath != wantPath {
		t.Errorf("LocalPath = %q, want %q", episode.LocalPath, wantPath)
	}
	if episode.ArtifactURL != "https://cdn.example.com/episodes/briefing-2026-03-01.mp3" {
		t.Errorf("ArtifactURL = %q", episode.ArtifactURL)
	}
	if episode.SizeBytes != int64(len("mp3 bytes")) {
		t.Errorf("SizeBytes = %d", episode.SizeBytes)
	}

	data, err := os.ReadFile(wantPath)
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(data) != "mp3 bytes" {
		t.Errorf("artifact content = %q", data)
	}

	// The temp file is gone once the rename lands.
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("artifact dir has %d entries, want only the episode", len(entries))
	}
}

func TestPackageWithoutPublicBaseURL(t *testing.T) {
	f := packager.NewFilesystem(t.TempDir(), "")

	episode := entity.Episode{ProducedAt: time.Now()}
	if err := f.Package(context.Background(), &episode, testAudio()); err != nil {
		t.Fatalf("Package err=%v", err)
	}
	if episode.ArtifactURL != "" {
		t.Errorf("ArtifactURL = %q, want empty without a public base", episode.ArtifactURL)
	}
	if episode.LocalPath == "" {
		t.Error("LocalPath missing")
	}
}

func TestPackageRejectsEmptyAudio(t *testing.T) {
	f := packager.NewFilesystem(t.TempDir(), "")
	episode := entity.Episode{ProducedAt: time.Now()}
	if err := f.Package(context.Background(), &episode, steps.Audio{}); err == nil {
		t.Fatal("expected an error for empty audio")
	}
}

func TestPackageKeepsExplicitDuration(t *testing.T) {
	f := packager.NewFilesystem(t.TempDir(), "")
	episode := entity.Episode{ProducedAt: time.Now(), Duration: 10 * time.Minute}
	if err := f.Package(context.Background(), &episode, testAudio()); err != nil {
		t.Fatalf("Package err=%v", err)
	}
	if episode.Duration != 10*time.Minute {
		t.Errorf("Duration = %s, packager must not overwrite it", episode.Duration)
	}
}

func TestPackageSameDayOverwrites(t *testing.T) {
	dir := t.TempDir()
	f := packager.NewFilesystem(dir, "")
	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)

	first := entity.Episode{ProducedAt: at}
	if err := f.Package(context.Background(), &first, testAudio()); err != nil {
		t.Fatalf("Package err=%v", err)
	}

	retake := entity.Episode{ProducedAt: at.Add(2 * time.Hour)}
	audio := testAudio()
	audio.Data = []byte("second take bytes")
	if err := f.Package(context.Background(), &retake, audio); err != nil {
		t.Fatalf("Package err=%v", err)
	}

	if first.LocalPath != retake.LocalPath {
		t.Fatalf("paths differ: %q vs %q", first.LocalPath, retake.LocalPath)
	}
	data, _ := os.ReadFile(retake.LocalPath)
	if string(data) != "second take bytes" {
		t.Errorf("content = %q, want the retake", data)
	}
}
