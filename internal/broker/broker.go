// Package broker is the transport layer between the dispatcher and the
// worker pool: durable hand-off of encoded envelopes with explicit
// per-delivery acknowledgment. The production implementation speaks AMQP
// (RabbitMQ); Memory is an in-process implementation for tests and local
// development.
package broker

import "context"

// Broker hands encoded envelopes from producers to consumers.
//
// Delivery is at-least-once: a message delivered but not acknowledged when
// the connection drops is redelivered by the broker once it detects the
// dead connection. Handlers must therefore be idempotent with respect to
// redelivery.
type Broker interface {
	// Publish sends body to the queue selected by routingKey. It returns
	// once the broker has accepted the message, not once a consumer has
	// processed it. When no connection can be established within the
	// configured retry budget it fails with taskerr.ErrPublishUnavailable.
	Publish(ctx context.Context, routingKey string, body []byte) error

	// Consume returns an unbounded stream of deliveries from queue. The
	// stream survives transport-level reconnects and is closed only when
	// ctx is cancelled or the broker is closed. Each delivery must be
	// resolved exactly once via Ack or Reject.
	Consume(ctx context.Context, queue string) (<-chan *Delivery, error)

	Close() error
}
