// Package dispatch is the producer side: it turns a task invocation into
// an envelope, publishes it, and hands the caller a job id to query later.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"taskforge/internal/broker"
	"taskforge/internal/envelope"
	"taskforge/internal/metrics"
	"taskforge/internal/state"
	"taskforge/internal/store"
)

// Dispatcher publishes jobs fire-and-forget. Statuses is optional; when nil
// no pending record is written and status queries are unavailable.
type Dispatcher struct {
	broker     broker.Broker
	statuses   store.StatusStore
	routingKey string
	logger     *slog.Logger
}

func New(b broker.Broker, statuses store.StatusStore, routingKey string, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		broker:     b,
		statuses:   statuses,
		routingKey: routingKey,
		logger:     logger,
	}
}

// Submit builds an envelope with a fresh job id and attempt 0, records a
// best-effort pending status, publishes, and returns the job id without
// waiting for execution.
//
// The pending write is advisory: its failure is logged as a warning and
// never blocks the publish. A publish failure is the one error the caller
// sees, as taskerr.ErrPublishUnavailable.
func (d *Dispatcher) Submit(ctx context.Context, taskName string, args []any, maxAttempts int) (string, error) {
	if taskName == "" {
		return "", fmt.Errorf("dispatch: task name is required")
	}
	if maxAttempts < 1 {
		return "", fmt.Errorf("dispatch: max attempts must be at least 1, got %d", maxAttempts)
	}

	argsJSON, err := json.Marshal(args)
	if err != nil {
		return "", fmt.Errorf("dispatch: marshal args: %w", err)
	}

	env := envelope.Envelope{
		JobID:       uuid.NewString(),
		TaskName:    taskName,
		Args:        argsJSON,
		EnqueuedAt:  time.Now().UTC(),
		Attempt:     0,
		MaxAttempts: maxAttempts,
	}

	data, err := envelope.Encode(env)
	if err != nil {
		return "", fmt.Errorf("dispatch: encode: %w", err)
	}

	if d.statuses != nil {
		if err := d.statuses.UpsertStatus(ctx, env.JobID, state.StatusPending, "", 0); err != nil {
			d.logger.Warn("pending status write failed",
				"job_id", env.JobID, "task", taskName, "error", err)
		}
	}

	if err := d.broker.Publish(ctx, d.routingKey, data); err != nil {
		return "", err
	}
	metrics.JobsPublishedTotal.WithLabelValues(taskName).Inc()

	d.logger.Info("job dispatched",
		"job_id", env.JobID, "task", taskName, "max_attempts", maxAttempts)
	return env.JobID, nil
}
