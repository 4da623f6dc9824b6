// Package health implements the per-component liveness/readiness
// supervision polled by the orchestration layer. Probes are pure queries:
// each call recomputes the snapshot from the registered checks and has no
// side effects.
package health

import (
	"context"
	"sync"
)

// Check reports one aspect of one component; nil means healthy.
type Check func(ctx context.Context) error

// Record is the latest snapshot for a component.
type Record struct {
	Live      bool   `json:"live"`
	Ready     bool   `json:"ready"`
	LastError string `json:"last_error,omitempty"`
}

type component struct {
	name  string
	live  Check
	ready Check
}

// Supervisor aggregates component checks. Components register once at
// startup; probes may run concurrently afterwards.
type Supervisor struct {
	mu         sync.RWMutex
	components []component
}

func NewSupervisor() *Supervisor {
	return &Supervisor{}
}

// Register adds a component. A nil live check means the component is live
// as long as the process is; a nil ready check falls back to the live
// check.
func (s *Supervisor) Register(name string, live, ready Check) {
	if live == nil {
		live = func(ctx context.Context) error { return nil }
	}
	if ready == nil {
		ready = live
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, component{name: name, live: live, ready: ready})
}

// Liveness reports whether every component's main loop is making progress.
func (s *Supervisor) Liveness(ctx context.Context) (bool, map[string]Record) {
	return s.probe(ctx, false)
}

// Readiness reports whether every component can currently accept new work.
func (s *Supervisor) Readiness(ctx context.Context) (bool, map[string]Record) {
	return s.probe(ctx, true)
}

func (s *Supervisor) probe(ctx context.Context, readiness bool) (bool, map[string]Record) {
	s.mu.RLock()
	components := s.components
	s.mu.RUnlock()

	healthy := true
	records := make(map[string]Record, len(components))

	for _, c := range components {
		rec := Record{Live: true, Ready: true}
		if err := c.live(ctx); err != nil {
			rec.Live = false
			rec.Ready = false
			rec.LastError = err.Error()
		} else if err := c.ready(ctx); err != nil {
			rec.Ready = false
			rec.LastError = err.Error()
		}

		if readiness && !rec.Ready {
			healthy = false
		}
		if !readiness && !rec.Live {
			healthy = false
		}
		records[c.name] = rec
	}
	return healthy, records
}
