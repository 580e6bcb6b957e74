package events

import (
	"context"
	"database/sql"
	"fmt"
)

// journalSchema lists the journal's schema steps in order. Applying step i
// brings the database to version i+1. The version lives in the SQLite
// header (PRAGMA user_version), so steps are only ever appended.
var journalSchema = []string{
	`CREATE TABLE IF NOT EXISTS workflow_events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		type TEXT NOT NULL,
		timestamp TEXT NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		phase TEXT NOT NULL DEFAULT '',
		task_id TEXT NOT NULL DEFAULT '',
		severity TEXT NOT NULL,
		message TEXT NOT NULL,
		data TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_workflow_events_type ON workflow_events(type);
	CREATE INDEX IF NOT EXISTS idx_workflow_events_phase ON workflow_events(phase);`,
}

// JournalSchemaVersion is the schema version this build writes.
var JournalSchemaVersion = len(journalSchema)

// upgradeSchema applies the pending steps in one transaction and returns
// the resulting version. A journal written by a newer build is refused.
func upgradeSchema(ctx context.Context, db *sql.DB) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var version int
	if err := tx.QueryRowContext(ctx, "PRAGMA user_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("reading journal schema version: %w", err)
	}
	if version > len(journalSchema) {
		return version, fmt.Errorf("journal schema version %d is newer than supported version %d", version, len(journalSchema))
	}
	if version == len(journalSchema) {
		return version, nil
	}

	for v := version; v < len(journalSchema); v++ {
		if _, err := tx.ExecContext(ctx, journalSchema[v]); err != nil {
			return version, fmt.Errorf("journal schema step %d: %w", v+1, err)
		}
	}
	// PRAGMA does not take bind parameters.
	if _, err := tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version = %d", len(journalSchema))); err != nil {
		return version, fmt.Errorf("recording journal schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return version, err
	}
	return len(journalSchema), nil
}
