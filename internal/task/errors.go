package task

import (
	"errors"
	"fmt"
)

// Failure taxonomy for stage execution. The retry controller centralizes all
// escalation decisions on these sentinels; stages only classify.
var (
	// ErrTransient marks retryable failures: network errors, timeouts,
	// temporary provider unavailability.
	ErrTransient = errors.New("transient failure")

	// ErrPermanent marks unretryable failures: malformed input, unsupported
	// formats. Retrying cannot succeed, so the task fails immediately.
	ErrPermanent = errors.New("permanent failure")

	// ErrDeferred marks quota-induced deferrals. The task is requeued
	// without consuming retry budget; this is not a failure.
	ErrDeferred = errors.New("deferred by quota")
)

// Dispatcher errors
var (
	// ErrUnknownKind is returned when a submitted kind is not one of the
	// defined task kinds.
	ErrUnknownKind = errors.New("unknown task kind")

	// ErrUnknownEntity is returned when the submitted entity does not
	// reference an existing file record.
	ErrUnknownEntity = errors.New("unknown entity")

	// ErrNotReprocessable is returned when reprocess is requested for a
	// task whose status is not failed.
	ErrNotReprocessable = errors.New("only failed tasks can be reprocessed")
)

// Transient wraps err as a retryable stage failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Permanent wraps err as an unretryable stage failure.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Deferred wraps err as a quota deferral.
func Deferred(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrDeferred, err)
}
