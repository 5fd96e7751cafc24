package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type postgresStore struct {
	db *sql.DB
}

// openPostgres opens a managed-mode run-history store against dsn and
// applies pending embedded migrations, the exact parallel of the teacher's
// migrate.New("file://"+dir, dsn) pattern except the migration source is
// compiled in via embed.FS rather than read from disk at runtime.
func openPostgres(ctx context.Context, dsn string) (Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres history: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres history: %w", err)
	}

	if err := runMigrations(db, dsn); err != nil {
		db.Close()
		return nil, err
	}

	return &postgresStore{db: db}, nil
}

func runMigrations(db *sql.DB, dsn string) error {
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

func (s *postgresStore) Append(ctx context.Context, r Record) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, ended_at, config_hash, passed, file_count, first_error)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (run_id) DO UPDATE SET ended_at=excluded.ended_at, passed=excluded.passed,
		   file_count=excluded.file_count, first_error=excluded.first_error`,
		r.RunID, r.StartedAt, r.EndedAt, r.ConfigHash, r.Passed, r.FileCount, nullable(r.FirstError),
	)
	return err
}

func (s *postgresStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, started_at, ended_at, config_hash, passed, file_count, first_error
		 FROM runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanRecords(rows)
}

func (s *postgresStore) Close() error { return s.db.Close() }
