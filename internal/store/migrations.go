package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for all audit tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id             TEXT PRIMARY KEY,
		coordinator_id INTEGER NOT NULL,
		mode           TEXT NOT NULL DEFAULT 'inproc',
		total          INTEGER NOT NULL,
		simultaneous   INTEGER NOT NULL,
		time_limit     INTEGER NOT NULL,
		seed           INTEGER NOT NULL DEFAULT 0,
		state          TEXT NOT NULL DEFAULT 'RUNNING',
		launched       INTEGER NOT NULL DEFAULT 0,
		final_seconds  INTEGER NOT NULL DEFAULT 0,
		final_nanos    INTEGER NOT NULL DEFAULT 0,
		error          TEXT NOT NULL DEFAULT '',
		created_at     TEXT NOT NULL,
		completed_at   TEXT
	)`,

	`CREATE TABLE IF NOT EXISTS snapshots (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id         TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		coordinator_id INTEGER NOT NULL,
		clock_seconds  INTEGER NOT NULL,
		clock_nanos    INTEGER NOT NULL,
		state          TEXT NOT NULL,
		launched       INTEGER NOT NULL,
		rows           TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS events (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		kind          TEXT NOT NULL,
		clock_seconds INTEGER NOT NULL,
		clock_nanos   INTEGER NOT NULL,
		slot          INTEGER NOT NULL,
		task_id       INTEGER NOT NULL,
		detail        TEXT NOT NULL DEFAULT ''
	)`,

	`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_state ON runs(state)`,
	`CREATE INDEX IF NOT EXISTS idx_snapshots_run_id ON snapshots(run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_events_run_id ON events(run_id)`,
}

// alterStatements are column additions that need special handling since
// SQLite doesn't support IF NOT EXISTS for ALTER TABLE ADD COLUMN.
var alterStatements = []struct {
	table    string
	column   string
	alterSQL string
	indexSQL string // Optional index to create after column is added
}{
	{
		table:    "snapshots",
		column:   "reason",
		alterSQL: "ALTER TABLE snapshots ADD COLUMN reason TEXT NOT NULL DEFAULT ''",
	},
	{
		table:    "events",
		column:   "detail",
		alterSQL: "ALTER TABLE events ADD COLUMN detail TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_events_kind ON events(run_id, kind)",
	},
}

// migrate executes all schema DDL statements, alter migrations, and post-migration indexes.
func migrate(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	for _, alter := range alterStatements {
		if err := addColumnIfNotExists(ctx, db, alter.table, alter.column, alter.alterSQL); err != nil {
			return err
		}
		if alter.indexSQL != "" {
			if _, err := db.ExecContext(ctx, alter.indexSQL); err != nil {
				return err
			}
		}
	}

	return nil
}

// addColumnIfNotExists adds a column to a table if it doesn't already exist.
func addColumnIfNotExists(ctx context.Context, db *sql.DB, table, column, alterSQL string) error {
	rows, err := db.QueryContext(ctx, "PRAGMA table_info("+table+")")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			return err
		}
		if strings.EqualFold(name, column) {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}
	rows.Close()

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
