package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid caller input.
	// Surfaced before any external side effect occurs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnknownOperation indicates an unrecognised composite operation name.
	ErrUnknownOperation = errors.New("unknown operation")

	// ErrUnknownService indicates a service ID with no registered budget
	// or adapter.
	ErrUnknownService = errors.New("unknown service")

	// ErrReconcileInProgress indicates a full reconciliation is already running.
	ErrReconcileInProgress = errors.New("reconciliation in progress")

	// ErrRateLimited indicates the API rate limit was exceeded.
	ErrRateLimited = errors.New("rate limited")
)

// ValidationError wraps ErrInvalidInput with the offending parameter.
// It is returned synchronously, before any workflow step executes.
type ValidationError struct {
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Param, e.Reason)
}

// Unwrap makes errors.Is(err, ErrInvalidInput) hold for validation errors.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidInput
}

// RateLimitError is a server-reported rate limit with a retry hint.
// The rate-limited client treats it as an authoritative budget override.
type RateLimitError struct {
	ServiceID  string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("%s: rate limit exceeded, retry after %s", e.ServiceID, e.RetryAfter)
}

// Unwrap makes errors.Is(err, ErrRateLimited) hold for rate limit errors.
func (e *RateLimitError) Unwrap() error {
	return ErrRateLimited
}

// TransientError marks an error as retryable (network hiccups, timeouts,
// 5xx responses). The rate-limited client retries these with backoff.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// Transient wraps err as retryable. Returns nil for a nil err.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

// IsTransient reports whether err is retryable.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// CompensationResult records the outcome of one compensating action.
type CompensationResult struct {
	// Step is the name of the compensated step.
	Step string

	// ExternalID is the identifier of the external object the
	// compensation acted on, if any.
	ExternalID string

	// Err is empty when the compensation succeeded.
	Err string
}

// PartialFailureError reports a workflow run that reached FAILED after
// compensation. It carries enough detail for the caller to know exactly
// what user-visible external state remains.
type PartialFailureError struct {
	Operation   string
	RunID       string
	FailedStep  string
	StepErr     error
	Compensated []CompensationResult

	// Remaining maps step name to the external identifier that could not
	// be cleaned up and requires manual intervention.
	Remaining map[string]string
}

func (e *PartialFailureError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run %s failed at step %q: %v", e.Operation, e.RunID, e.FailedStep, e.StepErr)
	if len(e.Remaining) > 0 {
		fmt.Fprintf(&b, " (manual cleanup required: %d objects)", len(e.Remaining))
	}
	return b.String()
}

func (e *PartialFailureError) Unwrap() error {
	return e.StepErr
}

// ReconcileSkippedError indicates one service's polling cycle was skipped.
// Not fatal: the cursor does not advance and the cycle retries next tick.
type ReconcileSkippedError struct {
	ServiceID string
	Err       error
}

func (e *ReconcileSkippedError) Error() string {
	return fmt.Sprintf("reconcile skipped for %s: %v", e.ServiceID, e.Err)
}

func (e *ReconcileSkippedError) Unwrap() error {
	return e.Err
}
