package domain

import (
	"errors"
	"fmt"
)

// Common domain errors returned by the pool, strategies, and learners.
var (
	// ErrInvalidConfidence indicates a confidence score outside [0, 1].
	ErrInvalidConfidence = errors.New("confidence must be in [0, 1]")

	// ErrDuplicateWorker indicates a registration attempt with a worker ID
	// that already exists in the pool.
	ErrDuplicateWorker = errors.New("worker already registered")

	// ErrWorkerNotFound indicates a reference to a worker ID that is not
	// registered in the pool.
	ErrWorkerNotFound = errors.New("worker not found")

	// ErrNoValidResults indicates that no successful worker results remain
	// after filtering, so no defensible aggregate value exists.
	ErrNoValidResults = errors.New("no valid results to aggregate")

	// ErrNotVariable indicates that a worker does not support parameter
	// variation.
	ErrNotVariable = errors.New("worker does not support variation")

	// ErrInvalidMetric indicates a performance metric with out-of-range
	// accuracy or confidence.
	ErrInvalidMetric = errors.New("invalid performance metric")

	// ErrInvalidConfiguration indicates configuration that failed
	// validation.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// WorkerError wraps an error raised during a single worker's execution,
// adding the worker identity and the operation that failed. The pool never
// lets these escape ExecuteParallel; they are converted into failed
// WorkerResults and surface here only in logs and metadata.
type WorkerError struct {
	// WorkerID identifies the worker whose execution failed.
	WorkerID string

	// Op names the operation that failed, such as "process" or
	// "confidence".
	Op string

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface for WorkerError.
func (e *WorkerError) Error() string {
	return fmt.Sprintf("worker %s: %s: %v", e.WorkerID, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is / errors.As matching.
func (e *WorkerError) Unwrap() error { return e.Err }

// NewWorkerError creates a WorkerError with the given details.
func NewWorkerError(workerID, op string, err error) *WorkerError {
	return &WorkerError{WorkerID: workerID, Op: op, Err: err}
}
