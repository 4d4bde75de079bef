package steps_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"briefcast/internal/config"
	"briefcast/internal/domain/entity"
	"briefcast/internal/pipeline"
	"briefcast/internal/pipeline/steps"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/scoring"
)

/* ─────────────────────────── fakes ─────────────────────────── */

type fakeFetcher struct {
	items []entity.Candidate
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ config.SourceConfig) ([]entity.Candidate, error) {
	return f.items, f.err
}

type fakeWriter struct {
	script steps.Script
	err    error
	calls  int
}

func (w *fakeWriter) WriteScript(_ context.Context, _ []scoring.ScoredItem) (steps.Script, error) {
	w.calls++
	return w.script, w.err
}

type fakeSynth struct {
	audio steps.Audio
	err   error
	calls int
}

func (s *fakeSynth) Synthesize(_ context.Context, _ steps.Script) (steps.Audio, error) {
	s.calls++
	return s.audio, s.err
}

type fakePackager struct {
	err   error
	calls int
}

func (p *fakePackager) Package(_ context.Context, episode *entity.Episode, audio steps.Audio) error {
	p.calls++
	if p.err != nil {
		return p.err
	}
	episode.LocalPath = "/tmp/episode.mp3"
	episode.ArtifactURL = "https://cdn.example.com/episode.mp3"
	episode.SizeBytes = int64(len(audio.Data))
	return nil
}

type fakePublisher struct {
	err   error
	calls int
}

func (p *fakePublisher) Publish(_ context.Context, _ entity.Episode) error {
	p.calls++
	return p.err
}

type fakeBroadcaster struct {
	err   error
	calls int
}

func (b *fakeBroadcaster) Broadcast(_ context.Context, _ entity.Episode) error {
	b.calls++
	return b.err
}

func newContext(t *testing.T) *pipeline.StepContext {
	t.Helper()
	cfg := config.Default()
	cfg.Sources = []config.SourceConfig{
		{Name: "wire", URL: "https://example.com/feed.xml", Kind: "rss"},
	}
	return pipeline.NewStepContext(cfg)
}

func kindOf(t *testing.T, err error) classify.Kind {
	t.Helper()
	return classify.NewClassifier(nil).Classify(err, "").Kind
}

func story(title, url string) entity.Candidate {
	return entity.Candidate{Title: title, URL: url, SourceName: "wire", Body: "body"}
}

/* ─────────────────────────── fetch ─────────────────────────── */

func TestFetchStepDeduplicatesByURL(t *testing.T) {
	sc := newContext(t)
	step := steps.NewFetchStep(map[string]steps.Fetcher{
		"rss": &fakeFetcher{items: []entity.Candidate{
			story("first take", "https://example.com/a"),
			story("second take", "https://example.com/a"),
			story("other story", "https://example.com/b"),
		}},
	})

	if err := step.Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	v, _ := sc.Value(steps.KeyCandidates)
	got := v.([]entity.Candidate)
	if len(got) != 2 {
		t.Fatalf("candidates = %d, want 2 after dedupe", len(got))
	}
	if got[0].Title != "first take" {
		t.Errorf("dedupe must keep the first occurrence, got %q", got[0].Title)
	}
	if sc.Result.Metadata["candidates_fetched"] != 2 {
		t.Errorf("metadata = %v", sc.Result.Metadata)
	}
}

func TestFetchStepPartialFailureIsWarning(t *testing.T) {
	sc := newContext(t)
	sc.Config.Sources = []config.SourceConfig{
		{Name: "up", URL: "https://up.example.com/feed.xml", Kind: "rss"},
		{Name: "down", URL: "https://down.example.com/index", Kind: "html"},
	}
	step := steps.NewFetchStep(map[string]steps.Fetcher{
		"rss":  &fakeFetcher{items: []entity.Candidate{story("one", "https://up.example.com/1")}},
		"html": &fakeFetcher{err: errors.New("connection refused")},
	})

	if err := step.Execute(context.Background(), sc); err != nil {
		t.Fatalf("one healthy source should carry the step: %v", err)
	}
	if len(sc.Result.Warnings) != 1 {
		t.Errorf("warnings = %v, want the failed source recorded", sc.Result.Warnings)
	}
	if sc.Result.Metadata["sources_failed"] != 1 {
		t.Errorf("sources_failed = %v", sc.Result.Metadata["sources_failed"])
	}
}

func TestFetchStepAllSourcesFailed(t *testing.T) {
	sc := newContext(t)
	step := steps.NewFetchStep(map[string]steps.Fetcher{
		"rss": &fakeFetcher{err: errors.New("connection refused")},
	})

	err := step.Execute(context.Background(), sc)
	if err == nil {
		t.Fatal("expected failure when no source yields candidates")
	}
	if kind := kindOf(t, err); kind != classify.KindNetworkError {
		t.Errorf("kind = %s, want %s", kind, classify.KindNetworkError)
	}
}

func TestFetchStepUnknownSourceKind(t *testing.T) {
	sc := newContext(t)
	sc.Config.Sources = []config.SourceConfig{
		{Name: "odd", URL: "https://example.com", Kind: "gopher"},
	}
	step := steps.NewFetchStep(map[string]steps.Fetcher{"rss": &fakeFetcher{}})

	if err := step.Execute(context.Background(), sc); err == nil {
		t.Fatal("expected failure, the only source has no fetcher")
	}
	if len(sc.Result.Warnings) != 1 || !strings.Contains(sc.Result.Warnings[0], "gopher") {
		t.Errorf("warnings = %v", sc.Result.Warnings)
	}
}

func TestFetchStepDefaultsKindToRSS(t *testing.T) {
	sc := newContext(t)
	sc.Config.Sources = []config.SourceConfig{
		{Name: "untyped", URL: "https://example.com/feed.xml"},
	}
	step := steps.NewFetchStep(map[string]steps.Fetcher{
		"rss": &fakeFetcher{items: []entity.Candidate{story("one", "https://example.com/1")}},
	})

	if err := step.Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
}

/* ─────────────────────────── select ─────────────────────────── */

func TestSelectStepKeepsTopK(t *testing.T) {
	sc := newContext(t)
	sc.Config.TargetItemCount = 2

	var candidates []entity.Candidate
	for i := 0; i < 6; i++ {
		candidates = append(candidates, story(fmt.Sprintf("story %d", i), fmt.Sprintf("https://example.com/%d", i)))
	}
	sc.Set(steps.KeyCandidates, candidates)

	step := steps.NewSelectStep(scoring.NewEngine(scoring.DefaultConfig()))
	if err := step.Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}

	v, _ := sc.Value(steps.KeySelected)
	selected := v.([]scoring.ScoredItem)
	if len(selected) != 2 {
		t.Fatalf("selected = %d, want 2", len(selected))
	}
	if sc.Result.Metadata["stories_selected"] != 2 {
		t.Errorf("metadata = %v", sc.Result.Metadata)
	}
	if _, ok := sc.Result.Metadata["selection_score_total"]; !ok {
		t.Error("selection_score_total missing from metadata")
	}
}

func TestSelectStepWithoutCandidates(t *testing.T) {
	sc := newContext(t)
	step := steps.NewSelectStep(scoring.NewEngine(scoring.DefaultConfig()))
	if err := step.Execute(context.Background(), sc); err == nil {
		t.Fatal("expected failure without fetched candidates")
	}
}

/* ─────────────────────────── compose ─────────────────────────── */

func selectedItems() []scoring.ScoredItem {
	return []scoring.ScoredItem{
		{Rank: 1, Score: 3.2, Candidate: story("big story", "https://example.com/1")},
		{Rank: 2, Score: 1.1, Candidate: story("small story", "https://example.com/2")},
	}
}

func TestComposeStepCallsConfiguredProvider(t *testing.T) {
	sc := newContext(t)
	sc.Config.ScriptProvider = "claude"
	sc.Set(steps.KeySelected, selectedItems())

	writer := &fakeWriter{script: steps.Script{Title: "Briefing", Body: "Good morning.", CostDollars: 0.12}}
	step := steps.NewComposeStep(map[string]steps.Scriptwriter{"claude": writer})

	if err := step.Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	if writer.calls != 1 {
		t.Errorf("provider calls = %d, want 1", writer.calls)
	}
	if sc.Result.Metadata["script_cost_dollars"] != 0.12 {
		t.Errorf("metadata = %v", sc.Result.Metadata)
	}
}

func TestComposeStepDryRunSkipsProvider(t *testing.T) {
	sc := newContext(t)
	sc.Config.DryRun = true
	sc.Set(steps.KeySelected, selectedItems())

	writer := &fakeWriter{}
	step := steps.NewComposeStep(map[string]steps.Scriptwriter{"claude": writer})

	if err := step.Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	if writer.calls != 0 {
		t.Error("dry run must not call the provider")
	}

	v, ok := sc.Value(steps.KeyScript)
	if !ok {
		t.Fatal("dry run should still produce a script")
	}
	script := v.(steps.Script)
	if !strings.Contains(script.Body, "big story") {
		t.Errorf("outline missing headlines: %q", script.Body)
	}
	if script.CostDollars != 0 {
		t.Errorf("dry-run script cost = %f, want 0", script.CostDollars)
	}
	if len(sc.Result.Warnings) != 1 {
		t.Errorf("warnings = %v, want the dry-run note", sc.Result.Warnings)
	}
}

func TestComposeStepProviderFailure(t *testing.T) {
	sc := newContext(t)
	sc.Set(steps.KeySelected, selectedItems())

	step := steps.NewComposeStep(map[string]steps.Scriptwriter{
		"claude": &fakeWriter{err: errors.New("model overloaded")},
	})

	err := step.Execute(context.Background(), sc)
	if err == nil {
		t.Fatal("expected provider failure to surface")
	}
	if kind := kindOf(t, err); kind != classify.KindTransformFailed {
		t.Errorf("kind = %s, want %s", kind, classify.KindTransformFailed)
	}
}

func TestComposeStepUnknownProvider(t *testing.T) {
	sc := newContext(t)
	sc.Config.ScriptProvider = "bard"
	sc.Set(steps.KeySelected, selectedItems())

	step := steps.NewComposeStep(map[string]steps.Scriptwriter{"claude": &fakeWriter{}})
	if err := step.Execute(context.Background(), sc); err == nil {
		t.Fatal("expected failure for an unconfigured provider")
	}
}

/* ─────────────────────────── synthesize ─────────────────────────── */

func TestSynthesizeStep(t *testing.T) {
	sc := newContext(t)
	sc.Set(steps.KeyScript, steps.Script{Title: "Briefing", Body: "Good morning."})

	synth := &fakeSynth{audio: steps.Audio{
		Data:        []byte("mp3 bytes"),
		Format:      "mp3",
		Duration:    3 * time.Minute,
		CostDollars: 0.05,
	}}
	step := steps.NewSynthesizeStep(synth)

	if err := step.Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	v, ok := sc.Value(steps.KeyAudio)
	if !ok {
		t.Fatal("audio not stored")
	}
	if v.(steps.Audio).Format != "mp3" {
		t.Errorf("audio = %+v", v)
	}
}

func TestSynthesizeStepFailure(t *testing.T) {
	sc := newContext(t)
	sc.Set(steps.KeyScript, steps.Script{Body: "text"})

	step := steps.NewSynthesizeStep(&fakeSynth{err: errors.New("tts unavailable")})
	err := step.Execute(context.Background(), sc)
	if kind := kindOf(t, err); kind != classify.KindSynthesisFailed {
		t.Errorf("kind = %s, want %s", kind, classify.KindSynthesisFailed)
	}
}

func TestSynthesizeStepDryRunSkips(t *testing.T) {
	sc := newContext(t)
	sc.Config.DryRun = true

	synth := &fakeSynth{}
	if err := steps.NewSynthesizeStep(synth).Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	if synth.calls != 0 {
		t.Error("dry run must not synthesize")
	}
}

/* ─────────────────────────── package ─────────────────────────── */

func TestPackageStepAssemblesEpisode(t *testing.T) {
	sc := newContext(t)
	sc.Set(steps.KeySelected, selectedItems())
	sc.Set(steps.KeyScript, steps.Script{Title: "Morning briefing"})
	sc.Set(steps.KeyAudio, steps.Audio{Data: []byte("audio"), Duration: 4 * time.Minute})

	packager := &fakePackager{}
	if err := steps.NewPackageStep(packager).Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}

	v, ok := sc.Value(steps.KeyEpisode)
	if !ok {
		t.Fatal("episode not stored")
	}
	episode := v.(entity.Episode)
	if episode.Title != "Morning briefing" || episode.Duration != 4*time.Minute {
		t.Errorf("episode = %+v", episode)
	}
	if len(episode.StoryTitles) != 2 || episode.StoryTitles[0] != "big story" {
		t.Errorf("story titles = %v", episode.StoryTitles)
	}
	if episode.ArtifactURL == "" || episode.SizeBytes != int64(len("audio")) {
		t.Errorf("packager fields not applied: %+v", episode)
	}
	if sc.Result.Metadata["episode_url"] != episode.ArtifactURL {
		t.Errorf("metadata = %v", sc.Result.Metadata)
	}
}

func TestPackageStepFailure(t *testing.T) {
	sc := newContext(t)
	sc.Set(steps.KeyScript, steps.Script{Title: "t"})
	sc.Set(steps.KeyAudio, steps.Audio{Data: []byte("a")})

	step := steps.NewPackageStep(&fakePackager{err: errors.New("disk full")})
	err := step.Execute(context.Background(), sc)
	if kind := kindOf(t, err); kind != classify.KindPackagingUploadFailed {
		t.Errorf("kind = %s, want %s", kind, classify.KindPackagingUploadFailed)
	}
}

/* ─────────────────────────── publish / notify ─────────────────────────── */

func TestPublishStep(t *testing.T) {
	sc := newContext(t)
	sc.Set(steps.KeyEpisode, entity.Episode{Title: "ep"})

	pub := &fakePublisher{}
	if err := steps.NewPublishStep(pub).Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	if pub.calls != 1 {
		t.Errorf("publish calls = %d", pub.calls)
	}

	pub.err = errors.New("feed write failed")
	err := steps.NewPublishStep(pub).Execute(context.Background(), sc)
	if kind := kindOf(t, err); kind != classify.KindFeedGenerationFailed {
		t.Errorf("kind = %s, want %s", kind, classify.KindFeedGenerationFailed)
	}
}

func TestNotifyStep(t *testing.T) {
	sc := newContext(t)
	sc.Set(steps.KeyEpisode, entity.Episode{Title: "ep"})

	b := &fakeBroadcaster{}
	if err := steps.NewNotifyStep(b).Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}
	if b.calls != 1 {
		t.Errorf("broadcast calls = %d", b.calls)
	}

	b.err = errors.New("webhook 500")
	err := steps.NewNotifyStep(b).Execute(context.Background(), sc)
	if kind := kindOf(t, err); kind != classify.KindBroadcastFailed {
		t.Errorf("kind = %s, want %s", kind, classify.KindBroadcastFailed)
	}
}

func TestDryRunSkipsOuterSteps(t *testing.T) {
	sc := newContext(t)
	sc.Config.DryRun = true

	packager := &fakePackager{}
	pub := &fakePublisher{}
	b := &fakeBroadcaster{}

	for _, step := range []pipeline.Step{
		steps.NewPackageStep(packager),
		steps.NewPublishStep(pub),
		steps.NewNotifyStep(b),
	} {
		if err := step.Execute(context.Background(), sc); err != nil {
			t.Fatalf("%s: err=%v", step.Name(), err)
		}
	}
	if packager.calls+pub.calls+b.calls != 0 {
		t.Error("dry run must not touch packaging, publication or broadcast")
	}
}

/* ─────────────────────────── cleanup ─────────────────────────── */

func TestCleanupStepRemovesPartialArtifacts(t *testing.T) {
	dir := t.TempDir()
	episodePath := filepath.Join(dir, "episode.mp3")
	tmpPath := filepath.Join(dir, ".tmp-12345")
	keepPath := filepath.Join(dir, "older-episode.mp3")
	for _, p := range []string{episodePath, tmpPath, keepPath} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	sc := newContext(t)
	sc.Config.ArtifactDir = dir
	sc.Set(steps.KeyEpisode, entity.Episode{LocalPath: episodePath})

	if err := steps.NewCleanupStep().Execute(context.Background(), sc); err != nil {
		t.Fatalf("Execute err=%v", err)
	}

	for _, p := range []string{episodePath, tmpPath} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", p)
		}
	}
	if _, err := os.Stat(keepPath); err != nil {
		t.Errorf("finished episodes must survive cleanup: %v", err)
	}
}

func TestCleanupStepWithoutEpisode(t *testing.T) {
	sc := newContext(t)
	sc.Config.ArtifactDir = filepath.Join(t.TempDir(), "missing")
	if err := steps.NewCleanupStep().Execute(context.Background(), sc); err != nil {
		t.Fatalf("cleanup must tolerate a missing artifact dir: %v", err)
	}
}
