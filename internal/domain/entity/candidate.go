// Package entity defines the core domain entities for briefcast.
// It contains the fundamental business objects such as Candidate and Episode,
// along with their validation rules and domain-specific errors.
package entity

import "time"

// Candidate represents a single news item pulled from a source before
// selection. PublishedAtRaw keeps the feed's original timestamp string;
// PublishedAt is the parsed form and stays zero when parsing failed.
type Candidate struct {
	Title          string
	URL            string
	Body           string
	SourceName     string
	PublishedAtRaw string
	PublishedAt    time.Time
}

// HasTimestamp reports whether the candidate carries a parseable
// publication timestamp. Candidates without one still flow through the
// pipeline; they simply earn no recency score.
func (c *Candidate) HasTimestamp() bool {
	return !c.PublishedAt.IsZero()
}

// Episode represents one produced briefing: the packaged audio artifact
// plus the stories it covers.
type Episode struct {
	Title       string
	ArtifactURL string
	LocalPath   string
	Duration    time.Duration
	SizeBytes   int64
	StoryTitles []string
	ProducedAt  time.Time
}

// Validate checks that a candidate has the minimum fields the pipeline
// needs. A missing timestamp is not an error (see HasTimestamp).
func (c *Candidate) Validate() error {
	if c.Title == "" {
		return &ValidationError{Field: "Title", Message: "must not be empty"}
	}
	if c.URL == "" {
		return &ValidationError{Field: "URL", Message: "must not be empty"}
	}
	return nil
}
