// Package history implements the run-history store (§12 SUPPLEMENTED
// FEATURES): one record per Driver.Run, keyed by run ID (appending a
// record whose run ID already exists updates that row), read back by
// `docrunner history`. Grounded on the teacher's internal/store/pg package
// (database/sql over a registered driver, a small single-purpose store
// type per concern) and its standalone/managed mode switch
// (DatabaseConfig.IsManagedMode()).
package history

import (
	"context"
	"database/sql"
	"time"
)

// Record is one completed run, keyed by its UUIDv7 run ID.
type Record struct {
	RunID      string
	StartedAt  time.Time
	EndedAt    time.Time
	ConfigHash string
	Passed     bool
	FileCount  int
	FirstError string
}

// Store persists and retrieves Records.
type Store interface {
	Append(ctx context.Context, r Record) error
	Recent(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

// Open returns the Postgres-backed Store when dsn is non-empty (managed
// mode), otherwise a SQLite-backed Store rooted at sqlitePath (standalone
// mode), mirroring the teacher's DatabaseConfig.IsManagedMode() switch.
func Open(ctx context.Context, dsn, sqlitePath string) (Store, error) {
	if dsn != "" {
		return openPostgres(ctx, dsn)
	}
	return openSQLite(ctx, sqlitePath)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var r Record
		var firstError sql.NullString
		if err := rows.Scan(&r.RunID, &r.StartedAt, &r.EndedAt, &r.ConfigHash, &r.Passed, &r.FileCount, &firstError); err != nil {
			return nil, err
		}
		r.FirstError = firstError.String
		out = append(out, r)
	}
	return out, rows.Err()
}
