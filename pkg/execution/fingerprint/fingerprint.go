// Package fingerprint derives deterministic cache keys for rule executions.
//
// A fingerprint is the SHA-256 hash of the rule-set version identity and the
// canonical fact bytes, separated by a NUL byte so "ab"+"c" and "a"+"bc" can
// never collide structurally. Including the version makes entries for a
// superseded rule set unreachable by construction.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"mercator-hq/themis/pkg/facts"
	"mercator-hq/themis/pkg/rules"
)

// Fingerprint identifies a (rule-set version, normalized fact) pair.
type Fingerprint string

// New derives the fingerprint for evaluating a normalized fact under a
// rule-set version. Pure and deterministic: equal inputs always produce
// equal fingerprints across processes and restarts.
func New(version rules.RuleSetVersion, fact *facts.Normalized) Fingerprint {
	h := sha256.New()
	h.Write([]byte(version.Key()))
	h.Write([]byte{0})
	h.Write(fact.Canonical())
	return Fingerprint(hex.EncodeToString(h.Sum(nil)))
}
