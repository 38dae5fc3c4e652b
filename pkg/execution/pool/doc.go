// Package pool manages the bounded set of reusable evaluation sessions.
//
// # Session Lifecycle
//
// A session moves Idle → InUse → Idle in normal operation and transitions to
// Invalid (then destruction) when its error count crosses the configured
// threshold, its bound rule-set version is superseded, the idle reaper
// retires it, or the pool shuts down. Sessions are owned by the pool; the
// execution coordinator only borrows them between Checkout and Return, and a
// session is never InUse by two callers at once.
//
// # Bounds and Blocking
//
// Checkout blocks up to the configured checkout timeout for a slot, using a
// weighted semaphore so timeout and cancellation semantics come from
// context rather than hand-rolled condition polling. The pool never holds
// more than MaxTotal sessions, idle and in-use combined. Session creation is
// expensive (rule-engine initialization) and happens outside the pool lock:
// the semaphore reserves the slot, and the creating caller populates it
// without blocking other checkouts or returns.
//
// # Hot-Swap
//
// Swap makes a new rule-set version current: idle sessions bound to the
// superseded version are destroyed immediately, in-flight sessions
// self-discard on Return, and no further checkouts of the superseded
// version are issued.
package pool
