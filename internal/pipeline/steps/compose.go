package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"briefcast/internal/observability/metrics"
	"briefcast/internal/pipeline"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/scoring"
)

// ComposeStep turns the selected stories into a briefing script via the
// configured scriptwriter provider. In dry-run mode it renders a local
// outline instead of calling the provider, so a dry run never spends.
type ComposeStep struct {
	writers map[string]Scriptwriter
	now     func() time.Time
}

// NewComposeStep creates the compose step. writers maps provider name
// ("claude", "openai") to its adapter.
func NewComposeStep(writers map[string]Scriptwriter) *ComposeStep {
	return &ComposeStep{writers: writers, now: time.Now}
}

func (s *ComposeStep) Name() string { return "compose" }

func (s *ComposeStep) Execute(ctx context.Context, sc *pipeline.StepContext) error {
	v, ok := sc.Value(KeySelected)
	if !ok {
		return fmt.Errorf("no selected stories to compose")
	}
	selected := v.([]scoring.ScoredItem)

	if sc.Config.DryRun {
		script := outlineScript(selected, s.now())
		sc.Set(KeyScript, script)
		sc.Result.Metadata["script_chars"] = len(script.Body)
		sc.Result.AddWarning("dry run: script rendered locally, provider not called")
		return nil
	}

	writer, ok := s.writers[sc.Config.ScriptProvider]
	if !ok {
		return fmt.Errorf("no scriptwriter for provider %q", sc.Config.ScriptProvider)
	}

	start := time.Now()
	script, err := writer.WriteScript(ctx, selected)
	if err != nil {
		return classify.WithKind(classify.KindTransformFailed,
			fmt.Errorf("generate script: %w", err))
	}
	metrics.RecordScriptGeneration(time.Since(start))

	slog.Info("script composed",
		slog.String("provider", sc.Config.ScriptProvider),
		slog.Int("chars", len(script.Body)),
		slog.Float64("cost_dollars", script.CostDollars))

	sc.Set(KeyScript, script)
	sc.Result.Metadata["script_chars"] = len(script.Body)
	sc.Result.Metadata["script_cost_dollars"] = script.CostDollars
	return nil
}

// outlineScript renders a deterministic headline outline for dry runs.
func outlineScript(items []scoring.ScoredItem, now time.Time) Script {
	var b strings.Builder
	title := fmt.Sprintf("Daily briefing for %s", now.Format("January 2, 2006"))
	fmt.Fprintf(&b, "%s.\n\n", title)
	for _, item := range items {
		fmt.Fprintf(&b, "%d. %s (%s)\n", item.Rank, item.Candidate.Title, item.Candidate.SourceName)
	}
	return Script{Title: title, Body: b.String()}
}
