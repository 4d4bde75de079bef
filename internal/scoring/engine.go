// Package scoring computes a bounded importance score per candidate story
// and ranks the top K into the pipeline. The score is a sum of
// independently clamped sub-signals, so no single signal can dominate, and
// ranking is a total order with deterministic tie-breaks.
package scoring

import (
	"sort"
	"strings"
	"time"

	"briefcast/internal/domain/entity"
)

// ReputationRule maps a source-name fragment to a static score.
type ReputationRule struct {
	Match string  `yaml:"match"`
	Score float64 `yaml:"score"`
}

// Config holds the scoring weights and caps. Zero values are replaced by
// DefaultConfig in NewEngine; an Engine never mutates its config.
type Config struct {
	// SentimentPerHit and SentimentCap bound the emotional-charge signal.
	SentimentPerHit float64 `yaml:"sentiment_per_hit"`
	SentimentCap    float64 `yaml:"sentiment_cap"`

	// BodySaturation is the body length (runes) at which the body signal
	// saturates at BodyCap.
	BodySaturation int     `yaml:"body_saturation"`
	BodyCap        float64 `yaml:"body_cap"`

	// TitleSaturation / TitleCap: same shape for titles.
	TitleSaturation int     `yaml:"title_saturation"`
	TitleCap        float64 `yaml:"title_cap"`

	// RecencyHorizon is the age beyond which a story earns zero recency;
	// within the horizon the signal decays linearly from RecencyCap.
	RecencyHorizon time.Duration `yaml:"recency_horizon"`
	RecencyCap     float64       `yaml:"recency_cap"`

	// SourceReputation is scanned in order; the first matching rule wins,
	// no match contributes zero.
	SourceReputation []ReputationRule `yaml:"source_reputation"`

	// Keyword tiers are mutually exclusive: a story matching both tiers
	// only earns the high boost. They deliberately do not stack, which
	// keeps near-duplicate keyword hits from double-counting.
	HighImpactKeywords   []string `yaml:"high_impact_keywords"`
	MediumImpactKeywords []string `yaml:"medium_impact_keywords"`
	HighImpactBoost      float64  `yaml:"high_impact_boost"`
	MediumImpactBoost    float64  `yaml:"medium_impact_boost"`
}

// DefaultConfig returns the production scoring profile.
func DefaultConfig() Config {
	return Config{
		SentimentPerHit: 0.25,
		SentimentCap:    1.5,
		BodySaturation:  2000,
		BodyCap:         1.5,
		TitleSaturation: 80,
		TitleCap:        0.5,
		RecencyHorizon:  48 * time.Hour,
		RecencyCap:      2.0,
		HighImpactKeywords: []string{
			"breaking", "outage", "security", "vulnerability", "acquisition",
		},
		MediumImpactKeywords: []string{
			"release", "launch", "update", "report", "funding",
		},
		HighImpactBoost:   2.0,
		MediumImpactBoost: 1.0,
	}
}

// MaxScore is the upper bound of Score for this config: the sum of every
// signal's cap.
func (c Config) MaxScore() float64 {
	return c.SentimentCap + c.BodyCap + c.TitleCap + c.RecencyCap +
		c.HighImpactBoost + maxReputation(c.SourceReputation)
}

func maxReputation(rules []ReputationRule) float64 {
	max := 0.0
	for _, r := range rules {
		if r.Score > max {
			max = r.Score
		}
	}
	return max
}

// ScoredItem is a candidate with its computed score and final rank.
type ScoredItem struct {
	Candidate entity.Candidate
	Score     float64
	Rank      int
}

// Engine scores and ranks candidates. Safe for concurrent use; it holds
// only immutable configuration.
type Engine struct {
	cfg Config
	now func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the engine's clock. The reference time for recency is
// read once per Score or Rank call, so a fixed clock makes scoring fully
// reproducible.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine. Zero-valued config fields fall back to the
// defaults so a partially specified YAML profile still behaves.
func NewEngine(cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.SentimentPerHit == 0 {
		cfg.SentimentPerHit = def.SentimentPerHit
	}
	if cfg.SentimentCap == 0 {
		cfg.SentimentCap = def.SentimentCap
	}
	if cfg.BodySaturation == 0 {
		cfg.BodySaturation = def.BodySaturation
	}
	if cfg.BodyCap == 0 {
		cfg.BodyCap = def.BodyCap
	}
	if cfg.TitleSaturation == 0 {
		cfg.TitleSaturation = def.TitleSaturation
	}
	if cfg.TitleCap == 0 {
		cfg.TitleCap = def.TitleCap
	}
	if cfg.RecencyHorizon == 0 {
		cfg.RecencyHorizon = def.RecencyHorizon
	}
	if cfg.RecencyCap == 0 {
		cfg.RecencyCap = def.RecencyCap
	}
	if cfg.HighImpactKeywords == nil {
		cfg.HighImpactKeywords = def.HighImpactKeywords
	}
	if cfg.MediumImpactKeywords == nil {
		cfg.MediumImpactKeywords = def.MediumImpactKeywords
	}
	if cfg.HighImpactBoost == 0 {
		cfg.HighImpactBoost = def.HighImpactBoost
	}
	if cfg.MediumImpactBoost == 0 {
		cfg.MediumImpactBoost = def.MediumImpactBoost
	}
	e := &Engine{cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Score computes the bounded importance score for one candidate. The
// result is deterministic for identical input, config, and clock reading,
// and always in [0, cfg.MaxScore()].
func (e *Engine) Score(c *entity.Candidate) float64 {
	return e.scoreAt(c, e.now())
}

// scoreAt scores against an explicit reference time so one Rank invocation
// evaluates every candidate at the same instant.
func (e *Engine) scoreAt(c *entity.Candidate, ref time.Time) float64 {
	score := 0.0
	score += clamp(sentimentMagnitude(c.Title+" "+c.Body)*e.cfg.SentimentPerHit, e.cfg.SentimentCap)
	score += saturate(len([]rune(c.Body)), e.cfg.BodySaturation, e.cfg.BodyCap)
	score += saturate(len([]rune(c.Title)), e.cfg.TitleSaturation, e.cfg.TitleCap)
	score += e.recency(c, ref)
	score += e.reputation(c.SourceName)
	score += e.keywordBoost(c)
	return score
}

// recency decays linearly from RecencyCap at age zero to zero at the
// horizon and beyond. A candidate without a parseable timestamp
// contributes zero rather than failing.
func (e *Engine) recency(c *entity.Candidate, ref time.Time) float64 {
	if !c.HasTimestamp() {
		return 0
	}
	age := ref.Sub(c.PublishedAt)
	if age < 0 {
		age = 0
	}
	if age >= e.cfg.RecencyHorizon {
		return 0
	}
	return e.cfg.RecencyCap * (1 - float64(age)/float64(e.cfg.RecencyHorizon))
}

func (e *Engine) reputation(sourceName string) float64 {
	lower := strings.ToLower(sourceName)
	for _, rule := range e.cfg.SourceReputation {
		if strings.Contains(lower, strings.ToLower(rule.Match)) {
			return rule.Score
		}
	}
	return 0
}

// keywordBoost returns the boost of the highest matching tier only; the
// tiers never stack.
func (e *Engine) keywordBoost(c *entity.Candidate) float64 {
	text := strings.ToLower(c.Title + " " + c.Body)
	for _, kw := range e.cfg.HighImpactKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return e.cfg.HighImpactBoost
		}
	}
	for _, kw := range e.cfg.MediumImpactKeywords {
		if strings.Contains(text, strings.ToLower(kw)) {
			return e.cfg.MediumImpactBoost
		}
	}
	return 0
}

// Rank scores all items and returns at most k of them, sorted strictly
// descending by score. Ties break by recency (newer first), then body
// length (longer first), then stable input order.
func (e *Engine) Rank(items []entity.Candidate, k int) []ScoredItem {
	ref := e.now()
	scored := make([]ScoredItem, len(items))
	for i, item := range items {
		scored[i] = ScoredItem{Candidate: item, Score: e.scoreAt(&item, ref)}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		ti, tj := scored[i].Candidate.PublishedAt, scored[j].Candidate.PublishedAt
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		li, lj := len(scored[i].Candidate.Body), len(scored[j].Candidate.Body)
		if li != lj {
			return li > lj
		}
		return false // stable sort preserves input order
	})

	if k >= 0 && k < len(scored) {
		scored = scored[:k]
	}
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}

func clamp(v, limit float64) float64 {
	if v > limit {
		return limit
	}
	if v < 0 {
		return 0
	}
	return v
}

func saturate(length, saturation int, limit float64) float64 {
	if saturation <= 0 {
		return 0
	}
	ratio := float64(length) / float64(saturation)
	if ratio > 1 {
		ratio = 1
	}
	return ratio * limit
}
