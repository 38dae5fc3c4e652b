package facts

import (
	"encoding/json"
	"fmt"
)

// Normalizer validates raw facts and produces their canonical form.
// Required identifying fields can be registered per fact type; every fact
// must carry non-empty "type" and "id" fields regardless.
//
// A Normalizer is safe for concurrent use once constructed; Require must not
// be called after Normalize has started being used.
type Normalizer struct {
	// required maps fact type to additional required field names.
	required map[string][]string
}

// NewNormalizer creates a Normalizer with no per-type requirements beyond
// the standard "type" and "id" fields.
func NewNormalizer() *Normalizer {
	return &Normalizer{required: make(map[string][]string)}
}

// Require registers additional required fields for a fact type.
// Facts of that type missing any of the fields fail validation.
func (n *Normalizer) Require(factType string, fields ...string) {
	n.required[factType] = append(n.required[factType], fields...)
}

// Normalize validates a raw fact and returns its canonical form.
// It returns a *ValidationError when the fact is malformed or incomplete.
func (n *Normalizer) Normalize(raw Raw) (*Normalized, error) {
	if len(raw) == 0 {
		return nil, &ValidationError{Message: "fact is empty"}
	}

	factType, err := requireStringField(raw, FieldType, "")
	if err != nil {
		return nil, err
	}

	factID, err := requireStringField(raw, FieldID, factType)
	if err != nil {
		return nil, err
	}

	for _, field := range n.required[factType] {
		val, ok := raw[field]
		if !ok || val == nil {
			return nil, &ValidationError{
				FactType: factType,
				Field:    field,
				Message:  "required field is missing",
			}
		}
	}

	// encoding/json emits map keys in sorted order at every nesting level,
	// which is exactly the canonical ordering the cache fingerprint needs.
	canonical, err := json.Marshal(raw)
	if err != nil {
		return nil, &ValidationError{
			FactType: factType,
			Message:  fmt.Sprintf("fact is not canonicalizable: %v", err),
		}
	}

	return &Normalized{
		factType:  factType,
		factID:    factID,
		canonical: canonical,
	}, nil
}

func requireStringField(raw Raw, field, factType string) (string, error) {
	val, ok := raw[field]
	if !ok {
		return "", &ValidationError{FactType: factType, Field: field, Message: "required field is missing"}
	}
	s, ok := val.(string)
	if !ok {
		return "", &ValidationError{FactType: factType, Field: field, Message: fmt.Sprintf("expected string, got %T", val)}
	}
	if s == "" {
		return "", &ValidationError{FactType: factType, Field: field, Message: "must not be empty"}
	}
	return s, nil
}
