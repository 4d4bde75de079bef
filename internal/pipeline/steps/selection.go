package steps

import (
	"context"
	"fmt"
	"log/slog"

	"briefcast/internal/domain/entity"
	"briefcast/internal/pipeline"
	"briefcast/internal/scoring"
)

// SelectStep scores the fetched candidates and keeps the configured top K.
type SelectStep struct {
	engine *scoring.Engine
}

func NewSelectStep(engine *scoring.Engine) *SelectStep {
	return &SelectStep{engine: engine}
}

func (s *SelectStep) Name() string { return "select" }

func (s *SelectStep) Execute(ctx context.Context, sc *pipeline.StepContext) error {
	v, ok := sc.Value(KeyCandidates)
	if !ok {
		return fmt.Errorf("no candidates available for selection")
	}
	candidates := v.([]entity.Candidate)

	selected := s.engine.Rank(candidates, sc.Config.TargetItemCount)
	if len(selected) == 0 {
		return fmt.Errorf("selection produced no stories from %d candidates", len(candidates))
	}

	for _, item := range selected {
		slog.Debug("story selected",
			slog.Int("rank", item.Rank),
			slog.Float64("score", item.Score),
			slog.String("title", item.Candidate.Title),
			slog.String("source", item.Candidate.SourceName))
	}

	var totalScore float64
	for _, item := range selected {
		totalScore += item.Score
	}

	sc.Set(KeySelected, selected)
	sc.Result.Metadata["stories_selected"] = len(selected)
	sc.Result.Metadata["selection_score_total"] = totalScore
	return nil
}
