package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"briefcast/internal/resilience/retry"
)

// FileLedger keeps all records in one JSON document that is rewritten
// wholesale on every upsert. This is an explicit non-transactional,
// last-writer-wins contract: two processes sharing the same file will
// silently overwrite each other. Callers needing concurrent writers should
// use the Postgres ledger instead.
type FileLedger struct {
	path string

	mu      sync.Mutex
	records map[string]*retry.ErrorRecord
	now     func() time.Time
}

var _ Ledger = (*FileLedger)(nil)

// NewFileLedger opens (or creates) the ledger document at path and
// rehydrates its records. Corrupt entries are skipped with a warning; a
// corrupt or missing file yields an empty ledger, never a startup failure.
func NewFileLedger(path string) (*FileLedger, error) {
	l := &FileLedger{
		path:    path,
		records: make(map[string]*retry.ErrorRecord),
		now:     time.Now,
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger document: %w", err)
	}

	// Decode entry by entry so one corrupt record does not poison the rest.
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		slog.Warn("ledger document corrupt, starting empty",
			slog.String("path", path),
			slog.Any("error", err))
		return l, nil
	}

	for id, entry := range raw {
		var rec retry.ErrorRecord
		if err := json.Unmarshal(entry, &rec); err != nil {
			slog.Warn("skipping corrupt ledger entry",
				slog.String("id", id),
				slog.Any("error", err))
			continue
		}
		l.records[id] = &rec
	}

	return l, nil
}

// Upsert replaces the record under its ID and rewrites the document.
func (l *FileLedger) Upsert(_ context.Context, record *retry.ErrorRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	cp := *record
	l.records[record.ID()] = &cp
	return l.flush()
}

// Load returns a copy of all records keyed by ID.
func (l *FileLedger) Load(_ context.Context) (map[string]*retry.ErrorRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make(map[string]*retry.ErrorRecord, len(l.records))
	for id, rec := range l.records {
		cp := *rec
		out[id] = &cp
	}
	return out, nil
}

// Stats aggregates records created within the window (zero = all records).
func (l *FileLedger) Stats(_ context.Context, window time.Duration) (*Stats, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return computeStats(l.records, window, l.now()), nil
}

// Prune removes resolved records older than the threshold. Unresolved
// records are kept regardless of age.
func (l *FileLedger) Prune(_ context.Context, olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-olderThan)
	removed := 0
	for id, rec := range l.records {
		if rec.Resolved && rec.CreatedAt.Before(cutoff) {
			delete(l.records, id)
			removed++
		}
	}

	if removed > 0 {
		if err := l.flush(); err != nil {
			return removed, err
		}
		slog.Info("ledger pruned",
			slog.Int("removed", removed),
			slog.Int("remaining", len(l.records)))
	}
	return removed, nil
}

// flush rewrites the whole document atomically: write to a temp file in
// the same directory, then rename over the target. Caller holds l.mu.
func (l *FileLedger) flush() error {
	data, err := json.MarshalIndent(l.records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ledger document: %w", err)
	}

	dir := filepath.Dir(l.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.json")
	if err != nil {
		return fmt.Errorf("create temp ledger file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write ledger document: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp ledger file: %w", err)
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace ledger document: %w", err)
	}
	return nil
}
