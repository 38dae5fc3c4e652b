package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"mercator-hq/themis/pkg/facts"
	"mercator-hq/themis/pkg/execution/pool"
	"mercator-hq/themis/pkg/rules"
)

// Failure kinds recorded on audit records and metrics labels.
const (
	FailureValidation      = "validation"
	FailurePoolExhausted   = "pool_exhausted"
	FailureTimeout         = "timeout"
	FailureEngine          = "engine"
	FailureCanceled        = "canceled"
	FailureSuperseded      = "superseded"
	FailureNoActiveVersion = "no_active_version"
	FailureSessionCreate   = "session_create"
	FailureInternal        = "internal"
)

// TimeoutError indicates the engine call exceeded the evaluation timeout.
// The session that ran it is treated as suspect and its error count
// incremented; the caller may retry with caution since engine state is
// uncertain.
type TimeoutError struct {
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("evaluation exceeded timeout of %s", e.Timeout)
}

// Unwrap allows errors.Is(err, context.DeadlineExceeded) checks.
func (e *TimeoutError) Unwrap() error {
	return context.DeadlineExceeded
}

// FailureKind classifies an execution error into one of the failure kind
// constants for audit records and metrics labels.
func FailureKind(err error) string {
	var validationErr *facts.ValidationError
	var engineErr *rules.EngineError
	var timeoutErr *TimeoutError
	var createErr *pool.CreateError

	switch {
	case err == nil:
		return ""
	case errors.As(err, &validationErr):
		return FailureValidation
	case errors.As(err, &timeoutErr):
		return FailureTimeout
	case errors.Is(err, pool.ErrExhausted):
		return FailurePoolExhausted
	case errors.Is(err, pool.ErrVersionSuperseded):
		return FailureSuperseded
	case errors.Is(err, pool.ErrNoActiveVersion):
		return FailureNoActiveVersion
	case errors.As(err, &createErr):
		return FailureSessionCreate
	case errors.As(err, &engineErr):
		return FailureEngine
	case errors.Is(err, context.Canceled):
		return FailureCanceled
	default:
		return FailureInternal
	}
}

// Retriable reports whether the caller may reasonably retry after err.
// Pool exhaustion and version supersession are transient; timeouts are
// retriable with caution; validation and engine failures are not retriable
// without changed input.
func Retriable(err error) bool {
	switch FailureKind(err) {
	case FailurePoolExhausted, FailureTimeout, FailureSuperseded, FailureSessionCreate:
		return true
	default:
		return false
	}
}
