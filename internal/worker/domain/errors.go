package domain

import "errors"

var (
	// ErrAnalysisNotFound is returned when no analysis row exists for a
	// (owner, fingerprint) pair.
	ErrAnalysisNotFound = errors.New("analysis not found")

	// ErrMalformedMessage is returned for queue messages that can never be
	// processed. These bypass retry and dead-letter immediately.
	ErrMalformedMessage = errors.New("malformed queue message")

	// ErrChaosInducedFailure is returned when the fault-injection config
	// forces a failure. Always transient: the message is requeued so the
	// broker's delivery counter advances toward the dead-letter limit.
	ErrChaosInducedFailure = errors.New("chaos: induced failure")
)

// RetryableError wraps transient errors. The pool nacks the message with
// requeue so the broker redelivers it; the broker's delivery limit, not the
// application, decides when it dead-letters.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error.
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}

// IsRetryable reports whether err should trigger a requeue.
func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
