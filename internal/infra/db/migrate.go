package db

import "database/sql"

// MigrateUp creates the error ledger schema. Statements are idempotent so
// the worker can run this on every start.
func MigrateUp(database *sql.DB) error {
	if _, err := database.Exec(`
CREATE TABLE IF NOT EXISTS error_records (
    id                   TEXT PRIMARY KEY,
    kind                 VARCHAR(40) NOT NULL,
    severity             VARCHAR(10) NOT NULL,
    message              TEXT NOT NULL,
    created_at           TIMESTAMPTZ NOT NULL,
    retry_count          INTEGER NOT NULL DEFAULT 0,
    max_retries          INTEGER NOT NULL,
    backoff_base_seconds BIGINT NOT NULL,
    resolved             BOOLEAN NOT NULL DEFAULT FALSE,
    resolved_at          TIMESTAMPTZ,
    notify_user          BOOLEAN NOT NULL DEFAULT FALSE,
    fallback_enabled     BOOLEAN NOT NULL DEFAULT TRUE
)`); err != nil {
		return err
	}

	indexes := []string{
		// Load orders by created_at; Prune filters on resolved + created_at.
		`CREATE INDEX IF NOT EXISTS idx_error_records_created_at ON error_records(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_error_records_unresolved ON error_records(resolved) WHERE resolved = FALSE`,
	}
	for _, idx := range indexes {
		if _, err := database.Exec(idx); err != nil {
			return err
		}
	}

	return nil
}

// MigrateDown drops the error ledger schema. This deletes all records.
func MigrateDown(database *sql.DB) error {
	_, err := database.Exec(`DROP TABLE IF EXISTS error_records`)
	return err
}
