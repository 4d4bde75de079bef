package steps

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"briefcast/internal/observability/metrics"
	"briefcast/internal/pipeline"
	"briefcast/internal/resilience/classify"
)

// SynthesizeStep converts the composed script into audio. Skipped entirely
// in dry-run mode.
type SynthesizeStep struct {
	synth Synthesizer
}

func NewSynthesizeStep(synth Synthesizer) *SynthesizeStep {
	return &SynthesizeStep{synth: synth}
}

func (s *SynthesizeStep) Name() string { return "synthesize" }

func (s *SynthesizeStep) Execute(ctx context.Context, sc *pipeline.StepContext) error {
	if sc.Config.DryRun {
		slog.Info("dry run: skipping audio synthesis")
		return nil
	}

	v, ok := sc.Value(KeyScript)
	if !ok {
		return fmt.Errorf("no script available for synthesis")
	}
	script := v.(Script)

	start := time.Now()
	audio, err := s.synth.Synthesize(ctx, script)
	if err != nil {
		return classify.WithKind(classify.KindSynthesisFailed,
			fmt.Errorf("synthesize audio: %w", err))
	}
	metrics.RecordSynthesis(time.Since(start), audio.CostDollars)

	slog.Info("audio synthesized",
		slog.Int("bytes", len(audio.Data)),
		slog.Duration("audio_duration", audio.Duration),
		slog.Float64("cost_dollars", audio.CostDollars))

	sc.Set(KeyAudio, audio)
	sc.Result.Metadata["audio_bytes"] = len(audio.Data)
	sc.Result.Metadata["audio_cost_dollars"] = audio.CostDollars
	return nil
}
