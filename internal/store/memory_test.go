package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/state"
)

func TestMemoryStore_UpsertAndGet(t *testing.T) {
	m := NewMemoryStore()

	require.NoError(t, m.UpsertStatus(context.Background(), "job-1", state.StatusPending, "", 0))
	require.NoError(t, m.UpsertStatus(context.Background(), "job-1", state.StatusInFlight, "", 0))

	rec, err := m.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusInFlight, rec.Status)
	assert.Equal(t, 0, rec.Attempts)
}

func TestMemoryStore_GetStatus_NotFound(t *testing.T) {
	m := NewMemoryStore()
	_, err := m.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// A write racing in after the job reached a terminal status must not
// downgrade the row.
func TestMemoryStore_TerminalRowIsNeverDowngraded(t *testing.T) {
	m := NewMemoryStore()

	require.NoError(t, m.UpsertStatus(context.Background(), "job-1", state.StatusSucceeded, "", 3))
	require.NoError(t, m.UpsertStatus(context.Background(), "job-1", state.StatusRetrying, "smtp unavailable", 2))

	rec, err := m.GetStatus(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, state.StatusSucceeded, rec.Status)
	assert.Equal(t, 3, rec.Attempts)

	require.NoError(t, m.UpsertStatus(context.Background(), "job-2", state.StatusDeadLettered, "card declined", 1))
	require.NoError(t, m.UpsertStatus(context.Background(), "job-2", state.StatusInFlight, "", 1))

	rec, err = m.GetStatus(context.Background(), "job-2")
	require.NoError(t, err)
	assert.Equal(t, state.StatusDeadLettered, rec.Status)
}

func TestMemoryStore_MarkStaleInFlight(t *testing.T) {
	m := NewMemoryStore()

	require.NoError(t, m.UpsertStatus(context.Background(), "stale", state.StatusInFlight, "", 1))
	m.mu.Lock()
	rec := m.records["stale"]
	rec.UpdatedAt = time.Now().Add(-time.Hour)
	m.records["stale"] = rec
	m.mu.Unlock()

	require.NoError(t, m.UpsertStatus(context.Background(), "fresh", state.StatusInFlight, "", 1))
	require.NoError(t, m.UpsertStatus(context.Background(), "done", state.StatusSucceeded, "", 1))

	n, err := m.MarkStaleInFlight(context.Background(), 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := m.GetStatus(context.Background(), "stale")
	require.NoError(t, err)
	assert.Equal(t, state.StatusRetrying, got.Status)

	got, err = m.GetStatus(context.Background(), "fresh")
	require.NoError(t, err)
	assert.Equal(t, state.StatusInFlight, got.Status)
}
