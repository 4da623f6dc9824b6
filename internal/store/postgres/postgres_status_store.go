// Package postgres implements the job status store on PostgreSQL with
// single-row statements keyed by job_id.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"taskforge/internal/state"
	"taskforge/internal/store"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS job_status (
    job_id     TEXT PRIMARY KEY,
    status     TEXT NOT NULL,
    detail     TEXT NOT NULL DEFAULT '',
    attempts   INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_job_status_status ON job_status (status);
`

type PostgresStatusStore struct {
	db *sql.DB
}

// Open connects, verifies the connection and bootstraps the schema. The
// statements are idempotent, so concurrent worker instances can run this
// without coordination.
func Open(ctx context.Context, dsn string) (*PostgresStatusStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("status store: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("status store: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("status store: schema: %w", err)
	}
	return &PostgresStatusStore{db: db}, nil
}

// NewPostgresStatusStore wraps an existing handle; callers own its lifecycle.
func NewPostgresStatusStore(db *sql.DB) *PostgresStatusStore {
	return &PostgresStatusStore{db: db}
}

// UpsertStatus writes the row for jobID. A terminal row is never
// overwritten: concurrent attempts of the same job may race their writes,
// and a slow write from an earlier attempt must not downgrade a job that
// already reached succeeded or dead_lettered.
func (s *PostgresStatusStore) UpsertStatus(ctx context.Context, jobID string, status state.JobStatus, detail string, attempts int) error {
	query := `
        INSERT INTO job_status (job_id, status, detail, attempts, updated_at)
        VALUES ($1, $2, $3, $4, now())
        ON CONFLICT (job_id) DO UPDATE
        SET status     = EXCLUDED.status,
            detail     = EXCLUDED.detail,
            attempts   = EXCLUDED.attempts,
            updated_at = now()
        WHERE job_status.status NOT IN ($5, $6)
    `

	if _, err := s.db.ExecContext(ctx, query, jobID, status.String(), detail, attempts,
		state.StatusSucceeded.String(), state.StatusDeadLettered.String()); err != nil {
		return fmt.Errorf("status store: upsert %s: %w", jobID, err)
	}
	return nil
}

func (s *PostgresStatusStore) GetStatus(ctx context.Context, jobID string) (*store.JobStatusRecord, error) {
	query := `
        SELECT job_id, status, detail, attempts, updated_at
        FROM job_status
        WHERE job_id = $1
    `

	var rec store.JobStatusRecord
	var status string
	err := s.db.QueryRowContext(ctx, query, jobID).Scan(
		&rec.JobID,
		&status,
		&rec.Detail,
		&rec.Attempts,
		&rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("status store: get %s: %w", jobID, err)
	}

	rec.Status = state.JobStatus(status)
	return &rec, nil
}

func (s *PostgresStatusStore) MarkStaleInFlight(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
        UPDATE job_status
        SET status = $1, updated_at = now()
        WHERE status = $2
          AND updated_at < now() - $3::interval
    `

	interval := fmt.Sprintf("%f seconds", olderThan.Seconds())
	result, err := s.db.ExecContext(ctx, query, state.StatusRetrying.String(), state.StatusInFlight.String(), interval)
	if err != nil {
		return 0, fmt.Errorf("status store: mark stale: %w", err)
	}
	return result.RowsAffected()
}

// Ping reports store reachability for readiness probes.
func (s *PostgresStatusStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStatusStore) Close() error {
	return s.db.Close()
}
