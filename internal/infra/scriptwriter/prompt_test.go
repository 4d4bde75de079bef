package scriptwriter

import (
	"strings"
	"testing"
	"time"

	"briefcast/internal/domain/entity"
	"briefcast/internal/scoring"
)

func promptConfig() ScriptConfig {
	return ScriptConfig{
		WordLimit: 1200,
		Language:  "English",
		Model:     "test-model",
		MaxTokens: 4096,
		Timeout:   time.Minute,
	}
}

func TestBuildPrompt(t *testing.T) {
	now := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	items := []scoring.ScoredItem{
		{Rank: 1, Candidate: entity.Candidate{Title: "lead story", SourceName: "wire", Body: "lead body"}},
		{Rank: 2, Candidate: entity.Candidate{Title: "second story", SourceName: "blog", Body: "second body"}},
	}

	prompt := buildPrompt(promptConfig(), items, now)

	for _, want := range []string{
		"in English",
		"March 1, 2026",
		"at most 1200 words",
		"Story 1: lead story (source: wire)",
		"Story 2: second story (source: blog)",
		"lead body",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	// Stories appear in rank order.
	if strings.Index(prompt, "lead story") > strings.Index(prompt, "second story") {
		t.Error("stories out of rank order")
	}
}

func TestBuildPromptTruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("x", maxStoryChars+500)
	items := []scoring.ScoredItem{
		{Rank: 1, Candidate: entity.Candidate{Title: "huge", SourceName: "wire", Body: long}},
	}

	prompt := buildPrompt(promptConfig(), items, time.Now())
	if strings.Contains(prompt, long) {
		t.Error("full body should have been truncated")
	}
	if !strings.Contains(prompt, long[:maxStoryChars]+"...") {
		t.Error("truncated body missing its ellipsis")
	}
}

func TestScriptTitle(t *testing.T) {
	got := scriptTitle(time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC))
	if got != "Daily briefing for March 1, 2026" {
		t.Errorf("scriptTitle = %q", got)
	}
}

func TestCountWords(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"one", 1},
		{"good morning,  listeners\n\nhere's the news", 6},
	}
	for _, tt := range tests {
		if got := countWords(tt.text); got != tt.want {
			t.Errorf("countWords(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestScriptConfigValidate(t *testing.T) {
	cfg := promptConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate err=%v", err)
	}

	bad := promptConfig()
	bad.WordLimit = 50
	if err := bad.Validate(); err == nil {
		t.Error("word limit below range should fail validation")
	}

	bad = promptConfig()
	bad.Language = ""
	if err := bad.Validate(); err == nil {
		t.Error("empty language should fail validation")
	}
}

func TestLoadWordLimit(t *testing.T) {
	tests := []struct {
		name  string
		value string
		want  int
	}{
		{"unset", "", defaultWordLimit},
		{"valid", "800", 800},
		{"garbage", "lots", defaultWordLimit},
		{"below range", "10", defaultWordLimit},
		{"above range", "90000", defaultWordLimit},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("SCRIPT_WORD_LIMIT", tt.value)
			if got := loadWordLimit(); got != tt.want {
				t.Errorf("loadWordLimit() = %d, want %d", got, tt.want)
			}
		})
	}
}
