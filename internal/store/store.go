// Package store provides an optional SQL-backed secondary index over cron
// run history and session metadata. The flat JSON files written by
// internal/cron and internal/sessions remain the source of truth (spec
// §4.7/§6); this index exists purely to make "show me the last N runs of
// job X" and "list sessions by recency" queries fast without scanning the
// filesystem, and is safe to delete and rebuild at any time.
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store wraps a *sql.DB holding the secondary index.
type Store struct {
	db     *sql.DB
	driver string // "pgx" or "sqlite"
}

// Open connects to dsn, picking the driver from its scheme. A bare file path
// or "file:" DSN opens an embedded modernc.org/sqlite database (`tappi
// serve` always opens ~/.tappi/index.db this way); a
// "postgres://"/"postgresql://" DSN opens Postgres via jackc/pgx.
func Open(dsn string) (*Store, error) {
	driver := "sqlite"
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		driver = "pgx"
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s store: %w", driver, err)
	}

	return &Store{db: db, driver: driver}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Migrate applies every pending schema migration. On Postgres this runs
// through golang-migrate's versioned migration engine (mirroring the
// teacher's `tappi migrate up`); on sqlite it simply (re-)executes the
// idempotent CREATE TABLE IF NOT EXISTS statements, since a single-file
// embedded database has no concurrent-deployment version skew to track.
func (s *Store) Migrate() error {
	if s.driver == "pgx" {
		return s.migratePostgres()
	}
	return s.migrateSQLite()
}

func (s *Store) migratePostgres() error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migration source: %w", err)
	}
	dbDriver, err := postgres.WithInstance(s.db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("init postgres migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("init migrator: %w", err)
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migrate up: %w", err)
	}
	return nil
}

func (s *Store) migrateSQLite() error {
	raw, err := migrationFS.ReadFile("migrations/0001_init.up.sql")
	if err != nil {
		return fmt.Errorf("read embedded migration: %w", err)
	}
	if _, err := s.db.Exec(string(raw)); err != nil {
		return fmt.Errorf("apply sqlite schema: %w", err)
	}
	return nil
}

// CronRunRecord is one row of the cron run history index.
type CronRunRecord struct {
	ID         string
	JobID      string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string // "running" | "success" | "error"
	Output     string
}

// placeholders returns n positional placeholders in the active driver's
// dialect: "$1, $2, ..." for Postgres, "?, ?, ..." for sqlite.
func (s *Store) placeholders(n int) []string {
	out := make([]string, n)
	for i := range out {
		if s.driver == "pgx" {
			out[i] = fmt.Sprintf("$%d", i+1)
		} else {
			out[i] = "?"
		}
	}
	return out
}

// RecordCronRun upserts a cron run row, keyed by ID.
func (s *Store) RecordCronRun(ctx context.Context, r CronRunRecord) error {
	p := s.placeholders(6)
	query := fmt.Sprintf(`
		INSERT INTO cron_runs (id, job_id, started_at, finished_at, status, output)
		VALUES (%s, %s, %s, %s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET
			finished_at = excluded.finished_at,
			status = excluded.status,
			output = excluded.output
	`, p[0], p[1], p[2], p[3], p[4], p[5])
	_, err := s.db.ExecContext(ctx, query, r.ID, r.JobID, r.StartedAt, r.FinishedAt, r.Status, r.Output)
	if err != nil {
		return fmt.Errorf("record cron run: %w", err)
	}
	return nil
}

// CronHistory returns the most recent runs of jobID, newest first.
func (s *Store) CronHistory(ctx context.Context, jobID string, limit int) ([]CronRunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	p := s.placeholders(2)
	query := fmt.Sprintf(`
		SELECT id, job_id, started_at, finished_at, status, output
		FROM cron_runs WHERE job_id = %s
		ORDER BY started_at DESC LIMIT %s
	`, p[0], p[1])
	rows, err := s.db.QueryContext(ctx, query, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("query cron history: %w", err)
	}
	defer rows.Close()

	var out []CronRunRecord
	for rows.Next() {
		var r CronRunRecord
		if err := rows.Scan(&r.ID, &r.JobID, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Output); err != nil {
			return nil, fmt.Errorf("scan cron run: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SessionIndexRow is one row of the session metadata index.
type SessionIndexRow struct {
	ID           string
	Title        string
	UpdatedAt    time.Time
	MessageCount int
}

// IndexSession upserts a session's listing metadata. Session saves do not
// call it; sessions.Manager.List serves session listings from memory.
func (s *Store) IndexSession(ctx context.Context, row SessionIndexRow) error {
	p := s.placeholders(4)
	query := fmt.Sprintf(`
		INSERT INTO session_index (id, title, updated_at, message_count)
		VALUES (%s, %s, %s, %s)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			updated_at = excluded.updated_at,
			message_count = excluded.message_count
	`, p[0], p[1], p[2], p[3])
	_, err := s.db.ExecContext(ctx, query, row.ID, row.Title, row.UpdatedAt, row.MessageCount)
	if err != nil {
		return fmt.Errorf("index session: %w", err)
	}
	return nil
}

// SessionIndexList returns the most recently updated sessions, newest first.
func (s *Store) SessionIndexList(ctx context.Context, limit int) ([]SessionIndexRow, error) {
	if limit <= 0 {
		limit = 100
	}
	p := s.placeholders(1)
	query := fmt.Sprintf(`
		SELECT id, title, updated_at, message_count
		FROM session_index ORDER BY updated_at DESC LIMIT %s
	`, p[0])
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query session index: %w", err)
	}
	defer rows.Close()

	var out []SessionIndexRow
	for rows.Next() {
		var row SessionIndexRow
		if err := rows.Scan(&row.ID, &row.Title, &row.UpdatedAt, &row.MessageCount); err != nil {
			return nil, fmt.Errorf("scan session index row: %w", err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
