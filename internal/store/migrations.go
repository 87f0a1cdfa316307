package store

import (
	"context"
	"database/sql"
	"strings"
)

// schema contains the DDL for the load history and snapshot tables.
// Each statement uses IF NOT EXISTS for idempotency.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS load_runs (
		id          TEXT PRIMARY KEY,
		listing     TEXT NOT NULL DEFAULT '',
		policy      TEXT NOT NULL,
		state       TEXT NOT NULL,
		entries     INTEGER NOT NULL DEFAULT 0,
		loaded      INTEGER NOT NULL DEFAULT 0,
		error       TEXT NOT NULL DEFAULT '',
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS load_failures (
		run_id     TEXT NOT NULL REFERENCES load_runs(id) ON DELETE CASCADE,
		position   INTEGER NOT NULL,
		identifier TEXT NOT NULL DEFAULT '',
		kind       TEXT NOT NULL,
		message    TEXT NOT NULL,
		details    TEXT NOT NULL DEFAULT '[]'
	)`,

	`CREATE TABLE IF NOT EXISTS templates (
		position    INTEGER NOT NULL,
		id          TEXT PRIMARY KEY,
		name        TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		schema      TEXT NOT NULL,
		parameters  TEXT NOT NULL DEFAULT 'null'
	)`,

	`CREATE INDEX IF NOT EXISTS idx_load_runs_started_at ON load_runs(started_at)`,
	`CREATE INDEX IF NOT EXISTS idx_load_failures_run_id ON load_failures(run_id)`,
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
		table:    "templates",
		column:   "run_id",
		alterSQL: "ALTER TABLE templates ADD COLUMN run_id TEXT NOT NULL DEFAULT ''",
		indexSQL: "CREATE INDEX IF NOT EXISTS idx_templates_run_id ON templates(run_id)",
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
	found := false
	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dflt *string
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dflt, &pk); err != nil {
			rows.Close()
			return err
		}
		if strings.EqualFold(name, column) {
			found = true
		}
	}
	err = rows.Err()
	rows.Close()
	if err != nil || found {
		return err
	}

	_, err = db.ExecContext(ctx, alterSQL)
	return err
}
