// Package store defines the job status write-back collaborator. The store
// is advisory: the broker remains the source of truth for delivery, the
// store only lets the submitting service query what happened to a job.
package store

import (
	"context"
	"errors"
	"time"

	"taskforge/internal/state"
)

// ErrNotFound is returned when no status row exists for a job id.
var ErrNotFound = errors.New("job status not found")

// JobStatusRecord is the single row kept per job, keyed by job id.
type JobStatusRecord struct {
	JobID     string
	Status    state.JobStatus
	Detail    string
	Attempts  int
	UpdatedAt time.Time
}

// StatusStore persists per-job status snapshots. All operations are
// single-row, single-statement; no transactions are required.
type StatusStore interface {
	// UpsertStatus records the latest status for jobID, creating the row
	// if needed.
	UpsertStatus(ctx context.Context, jobID string, status state.JobStatus, detail string, attempts int) error

	// GetStatus returns the current record for jobID, or ErrNotFound.
	GetStatus(ctx context.Context, jobID string) (*JobStatusRecord, error)

	// MarkStaleInFlight flips in_flight rows older than olderThan to
	// retrying and returns how many were touched. Status hygiene for jobs
	// whose worker died between the in_flight write and resolution; the
	// broker redelivers the message regardless.
	MarkStaleInFlight(ctx context.Context, olderThan time.Duration) (int64, error)
}
