package pool

import (
	"errors"
	"fmt"
	"time"
)

// Common sentinel errors.
var (
	// ErrExhausted indicates no session became available within the
	// checkout timeout. Retriable: the caller may back off and retry.
	ErrExhausted = errors.New("session pool exhausted")

	// ErrClosed indicates the pool has been shut down.
	ErrClosed = errors.New("session pool is closed")

	// ErrNoActiveVersion indicates checkout was attempted before any
	// rule-set version was bound to the pool.
	ErrNoActiveVersion = errors.New("no active rule-set version")

	// ErrVersionSuperseded indicates the requested version was hot-swapped
	// away between capture and checkout. Retriable with the new version.
	ErrVersionSuperseded = errors.New("rule-set version superseded")
)

// ExhaustedError carries timing detail for a failed checkout. It unwraps to
// ErrExhausted so callers can classify with errors.Is.
type ExhaustedError struct {
	Timeout time.Duration
	Waited  time.Duration
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("session pool exhausted: no session within %v (waited %v)", e.Timeout, e.Waited.Round(time.Millisecond))
}

// Unwrap returns ErrExhausted for errors.Is classification.
func (e *ExhaustedError) Unwrap() error {
	return ErrExhausted
}

// CreateError indicates session creation (engine initialization) failed.
type CreateError struct {
	Version string
	Cause   error
}

// Error implements the error interface.
func (e *CreateError) Error() string {
	return fmt.Sprintf("failed to create session for %s: %v", e.Version, e.Cause)
}

// Unwrap returns the underlying cause.
func (e *CreateError) Unwrap() error {
	return e.Cause
}
