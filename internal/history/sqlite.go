package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	ended_at    DATETIME NOT NULL,
	config_hash TEXT NOT NULL,
	passed      INTEGER NOT NULL,
	file_count  INTEGER NOT NULL,
	first_error TEXT
);
`

type sqliteStore struct {
	db *sql.DB
}

// openSQLite opens (creating if absent) a local SQLite run-history file at
// path, applying the single idempotent CREATE TABLE IF NOT EXISTS — no
// migration framework is warranted for a single local file, matching how
// lightweight local stores are treated elsewhere in the pack.
func openSQLite(ctx context.Context, path string) (Store, error) {
	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, ".docrunner", "history.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create history dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite history: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite does not support concurrent writers

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &sqliteStore{db: db}, nil
}

func (s *sqliteStore) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, ended_at, config_hash, passed, file_count, first_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET ended_at=excluded.ended_at, passed=excluded.passed,
		   file_count=excluded.file_count, first_error=excluded.first_error`,
		r.RunID, r.StartedAt, r.EndedAt, r.ConfigHash, r.Passed, r.FileCount, nullable(r.FirstError),
	)
	return err
}

func (s *sqliteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, ended_at, config_hash, passed, file_count, first_error
		 FROM runs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (s *sqliteStore) Close() error { return s.db.Close() }

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
