package ledger_test

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"briefcast/internal/ledger"
	"briefcast/internal/resilience/classify"
)

/* ─────────────────────────── helpers ─────────────────────────── */

func recordRows(rows ...[]driverValue) *sqlmock.Rows {
	r := sqlmock.NewRows([]string{
		"kind", "severity", "message", "created_at", "retry_count",
		"max_retries", "backoff_base_seconds", "resolved", "resolved_at",
		"notify_user", "fallback_enabled",
	})
	for _, row := range rows {
		r.AddRow(row...)
	}
	return r
}

type driverValue = driver.Value

/* ─────────────────────────── 1. Upsert ─────────────────────────── */

func TestPostgresLedgerUpsert(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	rec := newRecord(t, classify.KindUpstreamAPIError, "provider 503", at)
	rec.RetryCount = 1

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO error_records")).
		WithArgs(
			rec.ID(), string(rec.Kind), string(rec.Severity), rec.Message,
			rec.CreatedAt, rec.RetryCount, rec.MaxRetries,
			int64(rec.BackoffBase/time.Second), rec.Resolved, nil,
			rec.NotifyUser, rec.FallbackEnabled,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	l := ledger.NewPostgresLedger(db)
	if err := l.Upsert(context.Background(), rec); err != nil {
		t.Fatalf("Upsert err=%v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ─────────────────────────── 2. Load ─────────────────────────── */

func TestPostgresLedgerLoad(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	at := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	mock.ExpectQuery("FROM error_records").
		WillReturnRows(recordRows(
			[]driverValue{"network_error", "medium", "conn reset", at, 2, 5, int64(5), false, nil, false, true},
			// Unknown kind: skipped, not fatal.
			[]driverValue{"mystery_kind", "low", "??", at, 0, 1, int64(5), false, nil, false, true},
		))

	l := ledger.NewPostgresLedger(db)
	got, err := l.Load(context.Background())
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if len(got) != 1 {
		t.Fatalf("records = %d, want 1 (corrupt row skipped)", len(got))
	}
	for _, rec := range got {
		if rec.Kind != classify.KindNetworkError || rec.RetryCount != 2 {
			t.Errorf("unexpected record %+v", rec)
		}
		if rec.BackoffBase != 5*time.Second {
			t.Errorf("BackoffBase = %s, want 5s", rec.BackoffBase)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

/* ─────────────────────────── 3. Prune ─────────────────────────── */

func TestPostgresLedgerPrune(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer func() { _ = db.Close() }()

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM error_records")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 3))

	l := ledger.NewPostgresLedger(db)
	removed, err := l.Prune(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("Prune err=%v", err)
	}
	if removed != 3 {
		t.Errorf("removed = %d, want 3", removed)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}
