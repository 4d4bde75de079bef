package scriptwriter

import (
	"fmt"
	"strings"
	"time"

	"briefcast/internal/scoring"
)

// maxStoryChars bounds how much of each story body goes into the prompt.
const maxStoryChars = 4000

// buildPrompt renders the selected stories into the generation prompt.
// Stories appear in rank order; long bodies are truncated so the prompt
// stays within provider context limits.
func buildPrompt(cfg ScriptConfig, items []scoring.ScoredItem, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are the host of a daily audio news briefing. ")
	fmt.Fprintf(&b, "Write the full spoken script in %s for %s, at most %d words. ",
		cfg.Language, now.Format("January 2, 2006"), cfg.WordLimit)
	b.WriteString("Open with a one-sentence greeting, cover each story in order with smooth transitions, and close with a short sign-off. ")
	b.WriteString("Write plain prose only: no headings, no markdown, no stage directions.\n\n")

	for _, item := range items {
		fmt.Fprintf(&b, "Story %d: %s (source: %s)\n", item.Rank, item.Candidate.Title, item.Candidate.SourceName)
		body := item.Candidate.Body
		if len(body) > maxStoryChars {
			body = body[:maxStoryChars] + "..."
		}
		b.WriteString(body)
		b.WriteString("\n\n")
	}
	return b.String()
}

// scriptTitle derives the episode title for a given production date.
func scriptTitle(now time.Time) string {
	return fmt.Sprintf("Daily briefing for %s", now.Format("January 2, 2006"))
}

// countWords counts whitespace-separated words in a script.
func countWords(s string) int {
	return len(strings.Fields(s))
}
