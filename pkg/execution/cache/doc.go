// Package cache provides the bounded result cache for rule executions.
//
// # Eviction
//
// The cache combines LRU and TTL eviction. A maximum entry count and/or a
// maximum aggregate byte size bound the cache; inserting past a bound evicts
// least-recently-accessed entries until the insert fits. TTL expiry is
// checked lazily on every read and opportunistically by a periodic sweeper,
// so an expired entry is a miss even before it is swept.
//
// # Concurrency
//
// Get and Put are safe for concurrent use. A Get+Put pair for the same
// fingerprint is deliberately not atomic: concurrent identical misses may
// each compute independently and the last Put wins. Results are a pure
// function of (version, fact), so duplicate computation wastes work but can
// never produce an inconsistent cache.
//
// # Ownership
//
// Entries store the encoded result bytes, never a caller-visible pointer.
// Hits decode into a fresh value, so no two callers ever share mutable
// result state with the cache or each other.
package cache
