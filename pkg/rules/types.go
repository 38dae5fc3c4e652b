package rules

import (
	"fmt"
	"strings"
)

// RuleSetVersion identifies a compiled, immutable rule package. Once
// published a version's identity never changes; a new artifact produces a
// new version.
type RuleSetVersion struct {
	// Package is the rule package name (e.g., "loan-approval").
	Package string

	// Version is the version identifier, typically content-addressed.
	Version string

	// ArtifactRef points at the compiled artifact (file path or object key).
	ArtifactRef string
}

// Key returns the canonical "package@version" identity used in fingerprints
// and cache invalidation.
func (v RuleSetVersion) Key() string {
	return v.Package + "@" + v.Version
}

// IsZero reports whether the version is unset.
func (v RuleSetVersion) IsZero() bool {
	return v.Package == "" && v.Version == ""
}

// String implements fmt.Stringer.
func (v RuleSetVersion) String() string { return v.Key() }

// Result is the outcome of evaluating a rule set against one fact.
type Result struct {
	// Outcome is the final decision (e.g., "approve", "deny").
	Outcome string `json:"outcome"`

	// RuleName is the rule that determined the outcome, empty when the
	// rule set's default outcome applied.
	RuleName string `json:"rule_name,omitempty"`

	// FiredRules lists every rule that matched, in evaluation order.
	FiredRules []string `json:"fired_rules,omitempty"`

	// Attributes carries computed outputs set by matched rules.
	Attributes map[string]any `json:"attributes,omitempty"`
}

// Summary returns a short human-readable description for audit records.
func (r *Result) Summary() string {
	if r == nil {
		return ""
	}
	if len(r.FiredRules) == 0 {
		return fmt.Sprintf("outcome=%s (default)", r.Outcome)
	}
	return fmt.Sprintf("outcome=%s fired=[%s]", r.Outcome, strings.Join(r.FiredRules, ","))
}
