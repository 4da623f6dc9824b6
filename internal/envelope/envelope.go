// Package envelope defines the wire representation of one unit of deferred
// work and its JSON codec. The envelope is the only thing that crosses the
// broker; everything the worker needs to execute and account for a job must
// travel inside it.
package envelope

import (
	"encoding/json"
	"fmt"
	"time"

	"taskforge/internal/taskerr"
)

// Envelope describes one deferred task invocation.
//
// JobID is assigned at dispatch time and never changes, including across
// redeliveries. Attempt counts completed executions: it starts at 0 and the
// worker pool bumps it on each retry republish, so a job with
// MaxAttempts = N executes at most N times.
type Envelope struct {
	JobID       string          `json:"job_id"`
	TaskName    string          `json:"task_name"`
	Args        json.RawMessage `json:"args"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"max_attempts"`
}

// Encode serializes the envelope to JSON.
func Encode(e Envelope) ([]byte, error) {
	if err := validate(e); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// Decode parses message bytes into an envelope. Unknown fields are ignored
// so a newer dispatcher can add fields without breaking older workers.
// Anything that does not yield a structurally valid envelope is reported as
// taskerr.ErrMalformedEnvelope.
func Decode(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", taskerr.ErrMalformedEnvelope, err)
	}
	if err := validate(e); err != nil {
		return Envelope{}, err
	}
	return e, nil
}

func validate(e Envelope) error {
	switch {
	case e.JobID == "":
		return fmt.Errorf("%w: missing job_id", taskerr.ErrMalformedEnvelope)
	case e.TaskName == "":
		return fmt.Errorf("%w: missing task_name", taskerr.ErrMalformedEnvelope)
	case e.MaxAttempts < 1:
		return fmt.Errorf("%w: max_attempts must be at least 1", taskerr.ErrMalformedEnvelope)
	case e.Attempt < 0 || e.Attempt > e.MaxAttempts:
		return fmt.Errorf("%w: attempt %d out of range [0, %d]", taskerr.ErrMalformedEnvelope, e.Attempt, e.MaxAttempts)
	}
	return nil
}
