package broker

import (
	"sync/atomic"

	"taskforge/internal/taskerr"
)

// Delivery is one broker-owned hand-off of a message to a consumer. The
// same job may be delivered more than once; each hand-off gets its own
// Delivery. A Delivery is resolved exactly once, by Ack or by Reject;
// the consumed-once flag guards against double resolution, which would be
// a programming error in the worker.
type Delivery struct {
	Body []byte

	resolved atomic.Bool
	ackFn    func() error
	rejectFn func(requeue bool) error
}

// NewDelivery wraps transport-specific ack/reject callbacks. Exposed for
// broker implementations; consumers only see the Ack/Reject methods.
func NewDelivery(body []byte, ack func() error, reject func(requeue bool) error) *Delivery {
	return &Delivery{
		Body:     body,
		ackFn:    ack,
		rejectFn: reject,
	}
}

// Ack confirms successful processing; the broker may discard the message.
func (d *Delivery) Ack() error {
	if !d.resolved.CompareAndSwap(false, true) {
		return taskerr.ErrAlreadyResolved
	}
	return d.ackFn()
}

// Reject signals failure. With requeue the broker redelivers the original
// message; without it the message is routed to the dead-letter queue.
func (d *Delivery) Reject(requeue bool) error {
	if !d.resolved.CompareAndSwap(false, true) {
		return taskerr.ErrAlreadyResolved
	}
	return d.rejectFn(requeue)
}

// Resolved reports whether the delivery has been acked or rejected.
func (d *Delivery) Resolved() bool {
	return d.resolved.Load()
}
