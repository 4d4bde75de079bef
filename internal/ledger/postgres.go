package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"briefcast/internal/resilience/circuitbreaker"
	"briefcast/internal/resilience/classify"
	"briefcast/internal/resilience/retry"
)

// PostgresLedger stores records in an error_records table. It exists for
// deployments that outgrow the single-document file ledger; callers see
// the same Ledger interface either way.
type PostgresLedger struct {
	db  *circuitbreaker.DBCircuitBreaker
	now func() time.Time
}

var _ Ledger = (*PostgresLedger)(nil)

// NewPostgresLedger wraps db (opened via the pgx stdlib driver) with the
// ledger breaker profile.
func NewPostgresLedger(db *sql.DB) *PostgresLedger {
	return &PostgresLedger{
		db:  circuitbreaker.NewDBCircuitBreaker(db),
		now: time.Now,
	}
}

func (l *PostgresLedger) Upsert(ctx context.Context, record *retry.ErrorRecord) error {
	const query = `
INSERT INTO error_records
  (id, kind, severity, message, created_at, retry_count, max_retries,
   backoff_base_seconds, resolved, resolved_at, notify_user, fallback_enabled)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
ON CONFLICT (id) DO UPDATE SET
  retry_count = EXCLUDED.retry_count,
  resolved = EXCLUDED.resolved,
  resolved_at = EXCLUDED.resolved_at`

	var resolvedAt *time.Time
	if !record.ResolvedAt.IsZero() {
		resolvedAt = &record.ResolvedAt
	}

	_, err := l.db.ExecContext(ctx, query,
		record.ID(), string(record.Kind), string(record.Severity), record.Message,
		record.CreatedAt, record.RetryCount, record.MaxRetries,
		int64(record.BackoffBase/time.Second), record.Resolved, resolvedAt,
		record.NotifyUser, record.FallbackEnabled,
	)
	if err != nil {
		return fmt.Errorf("Upsert: %w", err)
	}
	return nil
}

func (l *PostgresLedger) Load(ctx context.Context) (map[string]*retry.ErrorRecord, error) {
	const query = `
SELECT kind, severity, message, created_at, retry_count, max_retries,
       backoff_base_seconds, resolved, resolved_at, notify_user, fallback_enabled
FROM error_records
ORDER BY created_at ASC`

	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make(map[string]*retry.ErrorRecord)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			// Mirror the file ledger: a bad row is skipped, not fatal.
			slog.Warn("skipping corrupt ledger row", slog.Any("error", err))
			continue
		}
		out[rec.ID()] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (*retry.ErrorRecord, error) {
	var rec retry.ErrorRecord
	var kind, severity string
	var backoffSeconds int64
	var resolvedAt sql.NullTime

	if err := rows.Scan(
		&kind, &severity, &rec.Message, &rec.CreatedAt, &rec.RetryCount,
		&rec.MaxRetries, &backoffSeconds, &rec.Resolved, &resolvedAt,
		&rec.NotifyUser, &rec.FallbackEnabled,
	); err != nil {
		return nil, err
	}

	rec.Kind = classify.Kind(kind)
	rec.Severity = classify.Severity(severity)
	rec.BackoffBase = time.Duration(backoffSeconds) * time.Second
	if resolvedAt.Valid {
		rec.ResolvedAt = resolvedAt.Time
	}
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("unknown kind %q", kind)
	}
	return &rec, nil
}

func (l *PostgresLedger) Stats(ctx context.Context, window time.Duration) (*Stats, error) {
	records, err := l.Load(ctx)
	if err != nil {
		return nil, err
	}
	return computeStats(records, window, l.now()), nil
}

func (l *PostgresLedger) Prune(ctx context.Context, olderThan time.Duration) (int, error) {
	const query = `
DELETE FROM error_records
WHERE resolved = TRUE AND created_at < $1`

	res, err := l.db.ExecContext(ctx, query, l.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("Prune: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("Prune: %w", err)
	}
	return int(affected), nil
}
