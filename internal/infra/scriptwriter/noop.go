package scriptwriter

import (
	"context"
	"strings"
	"time"

	"briefcast/internal/pipeline/steps"
	"briefcast/internal/scoring"
)

// Noop is a scriptwriter that renders a plain headline list without
// calling any provider. Used when no API key is configured and in tests.
type Noop struct {
	now func() time.Time
}

func NewNoop() *Noop {
	return &Noop{now: time.Now}
}

// WriteScript renders a minimal script from the story titles.
func (n *Noop) WriteScript(ctx context.Context, items []scoring.ScoredItem) (steps.Script, error) {
	now := n.now()
	var b strings.Builder
	b.WriteString("Here are today's top stories.\n")
	for _, item := range items {
		b.WriteString(item.Candidate.Title)
		b.WriteString(".\n")
	}
	b.WriteString("That's all for today.\n")
	return steps.Script{Title: scriptTitle(now), Body: b.String()}, nil
}
