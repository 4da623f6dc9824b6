package store

import (
	"context"
	"sync"
	"time"

	"taskforge/internal/state"
)

// MemoryStore is a map-backed StatusStore for tests and local development.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]JobStatusRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]JobStatusRecord)}
}

// UpsertStatus writes the record for jobID. Terminal records are kept as
// is, matching the Postgres store: a slow write racing in from an earlier
// attempt must not downgrade a finished job.
func (m *MemoryStore) UpsertStatus(ctx context.Context, jobID string, status state.JobStatus, detail string, attempts int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.records[jobID]; ok && rec.Status.Terminal() {
		return nil
	}
	m.records[jobID] = JobStatusRecord{
		JobID:     jobID,
		Status:    status,
		Detail:    detail,
		Attempts:  attempts,
		UpdatedAt: time.Now(),
	}
	return nil
}

func (m *MemoryStore) GetStatus(ctx context.Context, jobID string) (*JobStatusRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[jobID]
	if !ok {
		return nil, ErrNotFound
	}
	out := rec
	return &out, nil
}

func (m *MemoryStore) MarkStaleInFlight(ctx context.Context, olderThan time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-olderThan)
	var n int64
	for id, rec := range m.records {
		if rec.Status == state.StatusInFlight && rec.UpdatedAt.Before(cutoff) {
			rec.Status = state.StatusRetrying
			rec.UpdatedAt = time.Now()
			m.records[id] = rec
			n++
		}
	}
	return n, nil
}
