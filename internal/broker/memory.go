package broker

import (
	"context"
	"fmt"
	"sync"

	"taskforge/internal/taskerr"
)

const memoryQueueDepth = 1024

// Memory is an in-process Broker used by tests and local development. The
// routing key doubles as the queue name. Reject with requeue puts the
// original bytes back on the queue; without requeue they land in a
// per-queue dead-letter list that tests can inspect.
type Memory struct {
	mu     sync.Mutex
	queues map[string]chan []byte
	dead   map[string][][]byte
	closed bool

	// done is closed by Close. Queue channels are never closed; in-flight
	// senders race Close, and a send on a closed channel would panic.
	done chan struct{}
}

func NewMemory() *Memory {
	return &Memory{
		queues: make(map[string]chan []byte),
		dead:   make(map[string][][]byte),
		done:   make(chan struct{}),
	}
}

func (m *Memory) queue(name string) (chan []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, fmt.Errorf("broker: closed")
	}
	q, ok := m.queues[name]
	if !ok {
		q = make(chan []byte, memoryQueueDepth)
		m.queues[name] = q
	}
	return q, nil
}

func (m *Memory) Publish(ctx context.Context, routingKey string, body []byte) error {
	q, err := m.queue(routingKey)
	if err != nil {
		return fmt.Errorf("%w: %v", taskerr.ErrPublishUnavailable, err)
	}

	// Copy so later mutation by the caller cannot corrupt the queue.
	msg := make([]byte, len(body))
	copy(msg, body)

	select {
	case q <- msg:
		return nil
	case <-m.done:
		return fmt.Errorf("%w: broker closed", taskerr.ErrPublishUnavailable)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", taskerr.ErrPublishUnavailable, ctx.Err())
	}
}

func (m *Memory) Consume(ctx context.Context, queue string) (<-chan *Delivery, error) {
	q, err := m.queue(queue)
	if err != nil {
		return nil, err
	}

	out := make(chan *Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.done:
				return
			case body := <-q:
				d := NewDelivery(body,
					func() error { return nil },
					func(requeue bool) error { return m.resolve(queue, body, requeue) },
				)
				select {
				case out <- d:
				case <-ctx.Done():
					_ = d.Reject(true)
					return
				case <-m.done:
					return
				}
			}
		}
	}()
	return out, nil
}

func (m *Memory) resolve(queue string, body []byte, requeue bool) error {
	if requeue {
		q, err := m.queue(queue)
		if err != nil {
			return err
		}
		select {
		case q <- body:
			return nil
		case <-m.done:
			return fmt.Errorf("broker: closed")
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dead[queue] = append(m.dead[queue], body)
	return nil
}

// DeadLetters returns the bodies dead-lettered from queue, oldest first.
func (m *Memory) DeadLetters(queue string) [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.dead[queue]))
	copy(out, m.dead[queue])
	return out
}

// Depth returns the number of undelivered messages waiting on queue.
func (m *Memory) Depth(queue string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q, ok := m.queues[queue]; ok {
		return len(q)
	}
	return 0
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.done)
	return nil
}
