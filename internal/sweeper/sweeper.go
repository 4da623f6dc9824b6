// Package sweeper runs the periodic status-hygiene job: rows stuck
// in_flight because a worker died between the in_flight write and
// resolution are flipped back to retrying. The broker redelivers the
// underlying message on its own; the sweep only keeps status queries from
// reporting a dead worker's jobs as running forever.
package sweeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"taskforge/internal/store"
)

type Sweeper struct {
	statuses store.StatusStore
	staleAge time.Duration
	logger   *slog.Logger
	cron     *cron.Cron
}

func New(statuses store.StatusStore, staleAge time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		statuses: statuses,
		staleAge: staleAge,
		logger:   logger,
	}
}

// Start schedules the sweep with a standard 5-field cron expression and
// begins running it in the background.
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return fmt.Errorf("sweeper: bad schedule %q: %w", schedule, err)
	}
	c.Start()
	s.cron = c
	return nil
}

// Sweep performs one pass; exposed separately so it can be triggered and
// tested without the cron machinery.
func (s *Sweeper) Sweep(ctx context.Context) {
	n, err := s.statuses.MarkStaleInFlight(ctx, s.staleAge)
	if err != nil {
		s.logger.Warn("stale status sweep failed", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("stale statuses reclaimed", "count", n, "older_than", s.staleAge)
	}
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}
