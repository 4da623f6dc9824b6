// Package taskerr defines the failure taxonomy shared by the dispatcher,
// broker client and worker pool. Every failure a job can hit maps onto
// exactly one of these categories, which decides whether the delivery is
// retried, dead-lettered or surfaced to the submitting caller.
package taskerr

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedEnvelope is returned by the codec when message bytes do
	// not decode into a valid envelope. Never retried.
	ErrMalformedEnvelope = errors.New("malformed envelope")

	// ErrPublishUnavailable is returned by the broker client when no
	// connection could be established within the publish retry budget.
	ErrPublishUnavailable = errors.New("publish unavailable: broker unreachable")

	// ErrUnknownTask is returned when an envelope names a task with no
	// registry entry. Retrying cannot make a registration appear, so this
	// is never retried.
	ErrUnknownTask = errors.New("unknown task")

	// ErrAlreadyResolved is returned when a delivery handle is acked or
	// rejected more than once.
	ErrAlreadyResolved = errors.New("delivery already resolved")

	// ErrDuplicateTask is returned when the same task name is registered
	// twice. Reported at startup, never at dispatch time.
	ErrDuplicateTask = errors.New("task already registered")
)

// transientError marks a handler failure as worth retrying.
type transientError struct {
	err error
}

func (e *transientError) Error() string { return fmt.Sprintf("transient: %v", e.err) }
func (e *transientError) Unwrap() error { return e.err }

// permanentError marks a handler failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return fmt.Sprintf("permanent: %v", e.err) }
func (e *permanentError) Unwrap() error { return e.err }

// Transient wraps err so the worker pool retries the job, up to the
// envelope's max_attempts.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// Permanent wraps err so the worker pool dead-letters the job immediately,
// regardless of remaining attempts.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsTransient reports whether err was marked with Transient.
func IsTransient(err error) bool {
	var t *transientError
	return errors.As(err, &t)
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
