package facts

import "fmt"

// ValidationError indicates a fact that is malformed or incomplete. It is
// surfaced to the caller immediately and never retried.
type ValidationError struct {
	FactType string // Declared fact type, if one was present
	Field    string // Offending field, if attributable to one
	Message  string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch {
	case e.FactType != "" && e.Field != "":
		return fmt.Sprintf("invalid fact [type=%s]: field %q: %s", e.FactType, e.Field, e.Message)
	case e.Field != "":
		return fmt.Sprintf("invalid fact: field %q: %s", e.Field, e.Message)
	case e.FactType != "":
		return fmt.Sprintf("invalid fact [type=%s]: %s", e.FactType, e.Message)
	default:
		return fmt.Sprintf("invalid fact: %s", e.Message)
	}
}
