package rules

import (
	"errors"
	"fmt"
)

// Common sentinel errors.
var (
	// ErrSessionClosed indicates an evaluation was attempted against a
	// closed session.
	ErrSessionClosed = errors.New("engine session is closed")

	// ErrUnknownVersion indicates a session was requested for a version the
	// engine cannot resolve to an artifact.
	ErrUnknownVersion = errors.New("unknown rule-set version")
)

// EngineError is a domain-level failure reported by the evaluation engine,
// such as an invalid rule state. It is not retriable unless the caller
// changes its input.
type EngineError struct {
	Package string
	Rule    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	msg := e.Message
	if e.Rule != "" {
		msg = fmt.Sprintf("rule %q: %s", e.Rule, msg)
	}
	if e.Package != "" {
		msg = fmt.Sprintf("package %s: %s", e.Package, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("engine error: %s: %v", msg, e.Cause)
	}
	return "engine error: " + msg
}

// Unwrap returns the underlying cause.
func (e *EngineError) Unwrap() error {
	return e.Cause
}
