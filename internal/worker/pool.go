// Package worker consumes envelopes from the broker, executes registered
// handlers under per-task concurrency ceilings, and resolves every delivery
// exactly once: ack on success, retry republish on transient failure,
// dead-letter on permanent failure or an exhausted attempt budget.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"taskforge/internal/broker"
	"taskforge/internal/envelope"
	"taskforge/internal/metrics"
	"taskforge/internal/registry"
	"taskforge/internal/state"
	"taskforge/internal/store"
	"taskforge/internal/taskerr"
)

const (
	outcomeSucceeded    = "succeeded"
	outcomeRetried      = "retried"
	outcomeDeadLettered = "dead_lettered"
)

// Config carries the pool's queue wiring and shutdown budget.
type Config struct {
	// Queue is consumed from; RoutingKey is where retry republishes go.
	// In the default topology both name the same queue.
	Queue      string
	RoutingKey string

	// ShutdownGrace bounds how long in-flight handlers may run after the
	// pool is told to stop. Past it their contexts are cancelled and
	// their unacked deliveries redeliver elsewhere.
	ShutdownGrace time.Duration
}

// Pool is one worker process's consume-and-execute loop. Workers share no
// state with each other; all coordination goes through the broker.
type Pool struct {
	cfg      Config
	broker   broker.Broker
	registry *registry.Registry
	statuses store.StatusStore
	logger   *slog.Logger

	wg      sync.WaitGroup
	running atomic.Bool
}

// New builds a pool. statuses may be nil, which disables status write-back.
func New(cfg Config, b broker.Broker, reg *registry.Registry, statuses store.StatusStore, logger *slog.Logger) *Pool {
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 30 * time.Second
	}
	return &Pool{
		cfg:      cfg,
		broker:   b,
		registry: reg,
		statuses: statuses,
		logger:   logger,
	}
}

// Running reports whether the consume loop is active; liveness probes key
// off this.
func (p *Pool) Running() bool {
	return p.running.Load()
}

// Run consumes until ctx is cancelled or the broker closes the stream,
// then drains in-flight executions within the shutdown grace.
func (p *Pool) Run(ctx context.Context) error {
	deliveries, err := p.broker.Consume(ctx, p.cfg.Queue)
	if err != nil {
		return fmt.Errorf("worker: consume %s: %w", p.cfg.Queue, err)
	}

	handlerCtx, cancelHandlers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelHandlers()

	p.running.Store(true)
	defer p.running.Store(false)

	p.logger.Info("worker pool started", "queue", p.cfg.Queue, "tasks", p.registry.Names())

	for {
		select {
		case <-ctx.Done():
			p.drain(cancelHandlers)
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				p.drain(cancelHandlers)
				return nil
			}
			p.wg.Add(1)
			go func() {
				defer p.wg.Done()
				p.handle(ctx, handlerCtx, d)
			}()
		}
	}
}

// drain waits for in-flight handlers up to the grace period, then cancels
// their contexts and waits for them to unwind. Deliveries they never acked
// go back to the broker for redelivery, a deliberate at-least-once
// trade-off.
func (p *Pool) drain(cancelHandlers context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return
	case <-time.After(p.cfg.ShutdownGrace):
		p.logger.Warn("shutdown grace exceeded, cancelling in-flight handlers")
		cancelHandlers()
		<-done
	}
}

// handle resolves one delivery. consumeCtx gates slot acquisition (aborts
// at shutdown so the delivery requeues untouched); handlerCtx is what the
// handler itself runs under, cancelled only after the grace period.
func (p *Pool) handle(consumeCtx, handlerCtx context.Context, d *broker.Delivery) {
	env, err := envelope.Decode(d.Body)
	if err != nil {
		// No usable job id, nothing to retry; straight to the dead-letter
		// queue so the bytes are kept for inspection.
		p.logger.Error("malformed envelope rejected", "error", err)
		if rerr := d.Reject(false); rerr != nil {
			p.logger.Error("reject failed", "error", rerr)
		}
		return
	}

	logger := p.logger.With("job_id", env.JobID, "task", env.TaskName, "attempt", env.Attempt)

	reg, ok := p.registry.Lookup(env.TaskName)
	if !ok {
		// Retrying cannot make a missing registration appear.
		logger.Error("unknown task dead-lettered")
		p.deadLetter(handlerCtx, d, env, restingStatus(env), env.Attempt,
			fmt.Sprintf("%v: %s", taskerr.ErrUnknownTask, env.TaskName))
		return
	}

	if err := reg.Acquire(consumeCtx); err != nil {
		// Shutting down before the handler started; hand the delivery to
		// another worker untouched.
		if rerr := d.Reject(true); rerr != nil {
			logger.Error("requeue on shutdown failed", "error", rerr)
		}
		return
	}
	defer reg.Release()

	p.execute(handlerCtx, d, env, reg, logger)
}

func (p *Pool) execute(ctx context.Context, d *broker.Delivery, env envelope.Envelope, reg *registry.Registration, logger *slog.Logger) {
	p.writeStatus(ctx, env.JobID, restingStatus(env), state.StatusInFlight, "", env.Attempt)

	metrics.JobsInFlight.WithLabelValues(env.TaskName).Inc()
	err := p.invoke(ctx, reg, env, logger)
	metrics.JobsInFlight.WithLabelValues(env.TaskName).Dec()

	attempts := env.Attempt + 1

	switch {
	case err == nil:
		if aerr := d.Ack(); aerr != nil {
			logger.Error("ack failed", "error", aerr)
		}
		metrics.JobExecutionsTotal.WithLabelValues(env.TaskName, outcomeSucceeded).Inc()
		p.writeStatus(ctx, env.JobID, state.StatusInFlight, state.StatusSucceeded, "", attempts)
		logger.Info("job succeeded", "attempts", attempts)

	case taskerr.IsPermanent(err):
		logger.Warn("job failed permanently", "error", err)
		p.deadLetter(ctx, d, env, state.StatusInFlight, attempts, err.Error())

	default:
		// Transient by classification, or unclassified and treated as such.
		if attempts < env.MaxAttempts {
			p.retry(ctx, d, env, attempts, err, logger)
		} else {
			logger.Warn("retry budget exhausted", "error", err, "max_attempts", env.MaxAttempts)
			p.deadLetter(ctx, d, env, state.StatusInFlight, attempts, err.Error())
		}
	}
}

// restingStatus is the status a job holds between executions: pending before
// its first run, retrying after any retry republish.
func restingStatus(env envelope.Envelope) state.JobStatus {
	if env.Attempt > 0 {
		return state.StatusRetrying
	}
	return state.StatusPending
}

// invoke runs the handler, converting a panic into a transient failure
// that is additionally counted as a crash.
func (p *Pool) invoke(ctx context.Context, reg *registry.Registration, env envelope.Envelope, logger *slog.Logger) (err error) {
	defer func() {
		if r := recover(); r != nil {
			metrics.HandlerCrashesTotal.WithLabelValues(env.TaskName).Inc()
			logger.Error("handler crashed", "panic", r)
			err = taskerr.Transient(fmt.Errorf("handler crash: %v", r))
		}
	}()
	return reg.Handler(ctx, env.Args)
}

// retry republishes the envelope with the attempt counter bumped and acks
// the original delivery. The counter has to travel in a fresh publish:
// broker-side requeue would redeliver the original bytes. If the republish
// itself fails the original is requeued instead, so the job is never lost.
func (p *Pool) retry(ctx context.Context, d *broker.Delivery, env envelope.Envelope, attempts int, cause error, logger *slog.Logger) {
	next := env
	next.Attempt = attempts

	data, err := envelope.Encode(next)
	if err != nil {
		logger.Error("retry encode failed", "error", err)
		p.deadLetter(ctx, d, env, state.StatusInFlight, attempts, err.Error())
		return
	}

	// The retrying status is written before the republish so it can never
	// race with the redelivered attempt's own writes. A stale write landing
	// after the job finished would otherwise shadow the terminal status.
	p.writeStatus(ctx, env.JobID, state.StatusInFlight, state.StatusRetrying, cause.Error(), attempts)

	if err := p.broker.Publish(ctx, p.cfg.RoutingKey, data); err != nil {
		logger.Warn("retry republish failed, requeueing original", "error", err)
		if rerr := d.Reject(true); rerr != nil {
			logger.Error("requeue failed", "error", rerr)
		}
		return
	}

	if err := d.Ack(); err != nil {
		logger.Error("ack after retry republish failed", "error", err)
	}
	metrics.JobExecutionsTotal.WithLabelValues(env.TaskName, outcomeRetried).Inc()
	logger.Info("job retried", "error", cause, "next_attempt", next.Attempt)
}

func (p *Pool) deadLetter(ctx context.Context, d *broker.Delivery, env envelope.Envelope, from state.JobStatus, attempts int, detail string) {
	if err := d.Reject(false); err != nil {
		p.logger.Error("dead-letter reject failed", "job_id", env.JobID, "error", err)
	}
	metrics.JobExecutionsTotal.WithLabelValues(env.TaskName, outcomeDeadLettered).Inc()
	p.writeStatus(ctx, env.JobID, from, state.StatusDeadLettered, detail, attempts)
}

// writeStatus is best-effort: the broker drives the job lifecycle, the
// status row only serves queries. Writes that would break the lifecycle
// state machine are dropped rather than recorded.
func (p *Pool) writeStatus(ctx context.Context, jobID string, from, to state.JobStatus, detail string, attempts int) {
	if p.statuses == nil {
		return
	}
	if !state.IsValidTransition(from, to) {
		p.logger.Warn("status transition rejected", "job_id", jobID, "from", from, "to", to)
		return
	}
	if err := p.statuses.UpsertStatus(ctx, jobID, to, detail, attempts); err != nil {
		p.logger.Warn("status write failed", "job_id", jobID, "status", to, "error", err)
	}
}
