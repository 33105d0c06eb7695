// Package pipeline implements the payload submission pipeline: batch
// selection, idempotent submit-with-retry, failure classification, in-flight
// deduplication, and detached confirmation monitoring.
package pipeline

import (
	"errors"
	"fmt"
)

// FailureType classifies a chain-side failure for retry purposes.
type FailureType string

const (
	// FailureRetryable marks transient failures worth another attempt:
	// network errors, timeouts, congestion.
	FailureRetryable FailureType = "retryable"

	// FailurePermanent marks failures no retry can fix: bad signatures,
	// authorization errors, reverted state.
	FailurePermanent FailureType = "permanent"
)

// ValidationError reports a synchronous precondition failure on a submission
// request: unknown payload, wrong status, missing signature, or expiry.
// Validation errors are returned to the caller immediately and never retried.
type ValidationError struct {
	PayloadID string
	Reason    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("payload %s: %s", e.PayloadID, e.Reason)
}

// NewValidationError creates a ValidationError for the given payload.
func NewValidationError(payloadID, reason string) *ValidationError {
	return &ValidationError{PayloadID: payloadID, Reason: reason}
}

// IsValidationError reports whether err is (or wraps) a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// SubmissionError is the terminal error surfaced by Submit once retries are
// exhausted or a permanent failure is hit. It carries the classification and
// the attempt on which the pipeline gave up.
type SubmissionError struct {
	PayloadID string
	Type      FailureType
	Attempt   int
	Err       error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("payload %s failed (%s, attempt %d): %v", e.PayloadID, e.Type, e.Attempt, e.Err)
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}
