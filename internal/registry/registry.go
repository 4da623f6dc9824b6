// Package registry maps task names to their handlers and per-task
// concurrency ceilings. Registration happens once at worker startup from
// static configuration; the registry is immutable afterwards.
package registry

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/semaphore"

	"taskforge/internal/taskerr"
)

// Handler executes one task invocation. Args are the envelope's argument
// list, still JSON-encoded; the handler owns decoding them. Return nil on
// success, taskerr.Transient(err) to retry, taskerr.Permanent(err) to
// dead-letter immediately. An unclassified error is treated as transient.
type Handler func(ctx context.Context, args json.RawMessage) error

// Registration couples a handler with its concurrency ceiling. The
// semaphore is shared by every worker goroutine executing the task, which
// is what bounds simultaneous executions per task name.
type Registration struct {
	Name    string
	Handler Handler
	sem     *semaphore.Weighted
	limit   int64
}

// Acquire blocks until an execution slot for this task is free or ctx is
// cancelled. Saturation here is the backpressure point: the delivery stays
// unacknowledged in the broker while we wait.
func (r *Registration) Acquire(ctx context.Context) error {
	return r.sem.Acquire(ctx, 1)
}

func (r *Registration) Release() {
	r.sem.Release(1)
}

// MaxConcurrency returns the configured ceiling.
func (r *Registration) MaxConcurrency() int {
	return int(r.limit)
}

// Registry holds the task table. It is built before the worker pool starts
// and never mutated afterwards, so lookups need no locking.
type Registry struct {
	tasks map[string]*Registration
}

func New() *Registry {
	return &Registry{tasks: make(map[string]*Registration)}
}

// Register adds a task. Registering the same name twice is a configuration
// error and is reported at startup, not at dispatch time.
func (r *Registry) Register(name string, handler Handler, maxConcurrency int) error {
	if name == "" || handler == nil {
		return fmt.Errorf("registry: task must have a name and a handler")
	}
	if maxConcurrency < 1 {
		return fmt.Errorf("registry: task %q: max concurrency must be at least 1", name)
	}
	if _, exists := r.tasks[name]; exists {
		return fmt.Errorf("%w: %q", taskerr.ErrDuplicateTask, name)
	}

	r.tasks[name] = &Registration{
		Name:    name,
		Handler: handler,
		sem:     semaphore.NewWeighted(int64(maxConcurrency)),
		limit:   int64(maxConcurrency),
	}
	return nil
}

// Lookup returns the registration for name, or false when no task with
// that name exists.
func (r *Registry) Lookup(name string) (*Registration, bool) {
	reg, ok := r.tasks[name]
	return reg, ok
}

// Names lists registered task names, for startup logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tasks))
	for name := range r.tasks {
		names = append(names, name)
	}
	return names
}
