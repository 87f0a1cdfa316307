package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"

	"github.com/me/wftemplates/pkg/model"

	_ "modernc.org/sqlite"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// timeLayout is fixed width so stored timestamps sort as strings.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns a Store.
// Use ":memory:" for an in-memory database (useful in tests).
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	if dbPath == MemoryPath {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	} else if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma wal: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma fk: %w", err)
	}

	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "store"),
	}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate creates all required tables and indexes.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	s.logger.Debug("sql", "op", "migrate")
	return migrate(ctx, s.db)
}

// --- Load history ---

// RecordLoad stores a finished load run together with its failures.
func (s *SQLiteStore) RecordLoad(ctx context.Context, run *model.LoadRun) error {
	s.logger.Debug("sql", "op", "insert", "table", "load_runs", "id", run.ID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO load_runs (id, listing, policy, state, entries, loaded, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Listing, run.Policy, string(run.State), run.Entries, run.Loaded, run.Error,
		run.StartedAt.UTC().Format(timeLayout), run.FinishedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("insert load run: %w", err)
	}

	for _, f := range run.Failures {
		details, err := json.Marshal(f.Details)
		if err != nil {
			return fmt.Errorf("marshal failure details: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO load_failures (run_id, position, identifier, kind, message, details)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			run.ID, f.Position, f.Identifier, string(f.Kind), f.Message, string(details),
		)
		if err != nil {
			return fmt.Errorf("insert load failure: %w", err)
		}
	}
	return tx.Commit()
}

// GetLoad returns the run with its failures, or nil when it does not exist.
func (s *SQLiteStore) GetLoad(ctx context.Context, id string) (*model.LoadRun, error) {
	s.logger.Debug("sql", "op", "select", "table", "load_runs", "id", id)

	run, err := scanRun(s.db.QueryRowContext(ctx,
		`SELECT id, listing, policy, state, entries, loaded, error, started_at, finished_at
		 FROM load_runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT position, identifier, kind, message, details
		 FROM load_failures WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var f model.LoadFailure
		var kind, details string
		if err := rows.Scan(&f.Position, &f.Identifier, &kind, &f.Message, &details); err != nil {
			return nil, err
		}
		f.Kind = model.FailureKind(kind)
		if err := json.Unmarshal([]byte(details), &f.Details); err != nil {
			return nil, fmt.Errorf("unmarshal failure details: %w", err)
		}
		run.Failures = append(run.Failures, f)
	}
	return run, rows.Err()
}

// ListLoads returns runs newest first, without their failures.
func (s *SQLiteStore) ListLoads(ctx context.Context, opts model.ListOptions) ([]*model.LoadRun, int, error) {
	s.logger.Debug("sql", "op", "list", "table", "load_runs", "limit", opts.Limit, "offset", opts.Offset)
	opts.Clamp()

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM load_runs`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, listing, policy, state, entries, loaded, error, started_at, finished_at
		 FROM load_runs ORDER BY started_at DESC, rowid DESC LIMIT ? OFFSET ?`,
		opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var runs []*model.LoadRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		runs = append(runs, run)
	}
	return runs, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*model.LoadRun, error) {
	var run model.LoadRun
	var state, startedAt, finishedAt string
	if err := row.Scan(&run.ID, &run.Listing, &run.Policy, &state, &run.Entries, &run.Loaded,
		&run.Error, &startedAt, &finishedAt); err != nil {
		return nil, err
	}
	run.State = model.LoadState(state)
	run.StartedAt, _ = time.Parse(timeLayout, startedAt)
	run.FinishedAt, _ = time.Parse(timeLayout, finishedAt)
	return &run, nil
}

// --- Template snapshot ---

// SaveSnapshot replaces the stored template set with templates, keeping
// their order.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, runID string, templates []*model.Template) error {
	s.logger.Debug("sql", "op", "replace", "table", "templates", "run_id", runID, "count", len(templates))

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM templates`); err != nil {
		return err
	}
	for i, t := range templates {
		schema, err := json.Marshal(t.Schema)
		if err != nil {
			return fmt.Errorf("marshal schema of %s: %w", t.ID, err)
		}
		params, err := json.Marshal(t.Parameters)
		if err != nil {
			return fmt.Errorf("marshal parameters of %s: %w", t.ID, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO templates (position, id, name, description, schema, parameters, run_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			i, t.ID, t.Name, t.Description, string(schema), string(params), runID,
		)
		if err != nil {
			return fmt.Errorf("insert template %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

// LoadSnapshot returns the stored template set in its saved order.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context) ([]*model.Template, error) {
	s.logger.Debug("sql", "op", "list", "table", "templates")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, schema, parameters FROM templates ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.Template
	for rows.Next() {
		var t model.Template
		var schema, params string
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &schema, &params); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(schema), &t.Schema); err != nil {
			return nil, fmt.Errorf("unmarshal schema of %s: %w", t.ID, err)
		}
		if err := json.Unmarshal([]byte(params), &t.Parameters); err != nil {
			return nil, fmt.Errorf("unmarshal parameters of %s: %w", t.ID, err)
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}
