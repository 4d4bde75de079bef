// Package ledger stores error records durably and derives statistics from
// them. Two implementations share one interface: a whole-document JSON file
// for single-host deployments and a Postgres table for everything else.
package ledger

import (
	"context"
	"time"

	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
)

// Ledger is the durable store of error records, keyed by record ID.
type Ledger interface {
	// Upsert inserts or replaces the record under its content-derived ID.
	// Idempotent; an ID collision is last-write-wins.
	Upsert(ctx context.Context, record *retry.ErrorRecord) error

	// Load rehydrates all records, typically at startup. Corrupt entries
	// are skipped with a warning and never abort the load.
	Load(ctx context.Context) (map[string]*retry.ErrorRecord, error)

	// Stats aggregates records created within the window (zero = all).
	Stats(ctx context.Context, window time.Duration) (*Stats, error)

	// Prune deletes resolved records older than the threshold and returns
	// how many were removed. Unresolved records are never pruned.
	Prune(ctx context.Context, olderThan time.Duration) (int, error)
}

// Stats is the derived view over a set of records.
type Stats struct {
	Total          int                       `json:"total"`
	Resolved       int                       `json:"resolved"`
	ByKind         map[classify.Kind]int     `json:"by_kind"`
	BySeverity     map[classify.Severity]int `json:"by_severity"`
	ResolutionRate float64                   `json:"resolution_rate"`

	// MeanResolutionLatency is the average created→resolved gap over
	// resolved records; zero when nothing resolved yet.
	MeanResolutionLatency time.Duration `json:"mean_resolution_latency"`
}

// computeStats aggregates the given records, filtered to the window.
func computeStats(records map[string]*retry.ErrorRecord, window time.Duration, now time.Time) *Stats {
	stats := &Stats{
		ByKind:     make(map[classify.Kind]int),
		BySeverity: make(map[classify.Severity]int),
	}

	var latencySum time.Duration
	cutoff := time.Time{}
	if window > 0 {
		cutoff = now.Add(-window)
	}

	for _, rec := range records {
		if !cutoff.IsZero() && rec.CreatedAt.Before(cutoff) {
			continue
		}
		stats.Total++
		stats.ByKind[rec.Kind]++
		stats.BySeverity[rec.Severity]++
		if rec.Resolved {
			stats.Resolved++
			if rec.ResolvedAt.After(rec.CreatedAt) {
				latencySum += rec.ResolvedAt.Sub(rec.CreatedAt)
			}
		}
	}

	if stats.Total > 0 {
		stats.ResolutionRate = float64(stats.Resolved) / float64(stats.Total)
	}
	if stats.Resolved > 0 {
		stats.MeanResolutionLatency = latencySum / time.Duration(stats.Resolved)
	}
	return stats
}
