package metrics

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// RunRecord is one line of the NDJSON run log: the durable summary of a
// single pipeline run.
type RunRecord struct {
	RunID       string             `json:"run_id"`
	Variant     string             `json:"variant,omitempty"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Success     bool               `json:"success"`
	DryRun      bool               `json:"dry_run"`
	ItemCount   int                `json:"item_count"`
	CostDollars float64            `json:"cost_dollars"`
	StepSeconds map[string]float64 `json:"step_seconds,omitempty"`
	Errors      []string           `json:"errors,omitempty"`
}

// RunLog is an append-only NDJSON log of run records. One process appends;
// readers tolerate corrupt lines by skipping them.
type RunLog struct {
	path string
	mu   sync.Mutex
}

// NewRunLog creates a run log at path, creating parent directories as
// needed.
func NewRunLog(path string) (*RunLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create run log directory: %w", err)
	}
	return &RunLog{path: path}, nil
}

// Append writes one record as a single JSON line.
func (l *RunLog) Append(rec RunRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append run record: %w", err)
	}
	return nil
}

// ReadAll returns every parseable record in append order. A missing file
// yields an empty slice; corrupt lines are skipped with a warning.
func (l *RunLog) ReadAll() ([]RunRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()

	var records []RunRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if len(scanner.Bytes()) == 0 {
			continue
		}
		var rec RunRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			slog.Warn("skipping corrupt run log line",
				slog.String("path", l.path),
				slog.Int("line", line),
				slog.Any("error", err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return records, fmt.Errorf("scan run log: %w", err)
	}
	return records, nil
}

// Last returns the most recent n records in append order.
func (l *RunLog) Last(n int) ([]RunRecord, error) {
	records, err := l.ReadAll()
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(records) > n {
		records = records[len(records)-n:]
	}
	return records, nil
}
