// Package facts validates and canonicalizes domain objects submitted for
// rule evaluation.
//
// Normalization produces a byte-identical representation for semantically
// identical facts regardless of field order, which is what makes result-cache
// fingerprints stable. Normalize is a pure function: it never mutates its
// input and performs no I/O.
package facts
