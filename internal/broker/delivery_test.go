package broker

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskforge/internal/taskerr"
)

func TestDelivery_AckOnce(t *testing.T) {
	acks, rejects := 0, 0
	d := NewDelivery([]byte("payload"),
		func() error { acks++; return nil },
		func(requeue bool) error { rejects++; return nil },
	)

	require.False(t, d.Resolved())
	require.NoError(t, d.Ack())
	assert.True(t, d.Resolved())
	assert.Equal(t, 1, acks)

	// Second resolution of any kind is a programming error.
	assert.ErrorIs(t, d.Ack(), taskerr.ErrAlreadyResolved)
	assert.ErrorIs(t, d.Reject(true), taskerr.ErrAlreadyResolved)
	assert.Equal(t, 1, acks)
	assert.Equal(t, 0, rejects)
}

func TestDelivery_RejectOnce(t *testing.T) {
	var gotRequeue bool
	d := NewDelivery(nil,
		func() error { return nil },
		func(requeue bool) error { gotRequeue = requeue; return nil },
	)

	require.NoError(t, d.Reject(true))
	assert.True(t, gotRequeue)
	assert.ErrorIs(t, d.Reject(false), taskerr.ErrAlreadyResolved)
	assert.ErrorIs(t, d.Ack(), taskerr.ErrAlreadyResolved)
}

func TestDelivery_TransportErrorStillResolves(t *testing.T) {
	boom := errors.New("channel gone")
	d := NewDelivery(nil,
		func() error { return boom },
		func(requeue bool) error { return nil },
	)

	// The transport error propagates but the handle stays consumed; the
	// broker's own redelivery covers the lost ack.
	assert.ErrorIs(t, d.Ack(), boom)
	assert.True(t, d.Resolved())
	assert.ErrorIs(t, d.Ack(), taskerr.ErrAlreadyResolved)
}
