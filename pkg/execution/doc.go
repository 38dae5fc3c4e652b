// Package execution implements the rule execution hot path.
//
// # Flow
//
// The Coordinator orchestrates one execution end to end:
//
//	normalize fact → derive fingerprint → cache lookup
//	    → (miss) checkout session → evaluate → cache store → return session
//	    → emit audit record
//
// Exactly one audit record is emitted per Execute call, on every exit path.
// The subpackages provide the shared resources:
//
//   - fingerprint: deterministic (version, fact) cache keys
//   - cache: bounded TTL+LRU result cache
//   - pool: bounded pool of engine evaluation sessions
//
// # Error Taxonomy
//
// Failures surface as typed errors classified by FailureKind: validation
// errors from fact normalization, pool exhaustion from checkout, evaluation
// timeouts, and engine-reported domain failures. Retriable reports which of
// these a caller may back off and retry.
package execution
