// Package steps contains the concrete pipeline steps for one briefing
// production run and the collaborator interfaces they consume. Adapters
// under internal/infra implement the interfaces; the steps only know the
// contracts.
package steps

import (
	"context"
	"time"

	"briefcast/internal/config"
	"briefcast/internal/domain/entity"
	"briefcast/internal/scoring"
)

// Scratch keys for inter-step data. Steps overwrite these on every run so
// a whole-pipeline retry starts from a clean slate.
const (
	KeyCandidates = "candidates"
	KeySelected   = "selected"
	KeyScript     = "script"
	KeyAudio      = "audio"
	KeyEpisode    = "episode"
)

// Script is the generated briefing script.
type Script struct {
	Title       string
	Body        string
	CostDollars float64
}

// Audio is the synthesized briefing audio.
type Audio struct {
	Data        []byte
	Format      string
	Duration    time.Duration
	CostDollars float64
}

// Fetcher retrieves story candidates from one configured source.
type Fetcher interface {
	Fetch(ctx context.Context, source config.SourceConfig) ([]entity.Candidate, error)
}

// Scriptwriter turns the selected stories into a briefing script.
type Scriptwriter interface {
	WriteScript(ctx context.Context, items []scoring.ScoredItem) (Script, error)
}

// Synthesizer converts a script into audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, script Script) (Audio, error)
}

// Packager stores the audio artifact and fills in the episode's artifact
// fields (local path, public URL, size).
type Packager interface {
	Package(ctx context.Context, episode *entity.Episode, audio Audio) error
}

// Publisher regenerates the public feed from the episode catalog.
type Publisher interface {
	Publish(ctx context.Context, episode entity.Episode) error
}

// Broadcaster announces a published episode to subscribers.
type Broadcaster interface {
	Broadcast(ctx context.Context, episode entity.Episode) error
}
