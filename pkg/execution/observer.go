package execution

import "time"

// Observer receives execution events off the critical path. The metrics
// collector satisfies it directly; observer failures are swallowed by the
// coordinator and never fail an execution.
type Observer interface {
	// RecordExecution is called exactly once per Execute call.
	RecordExecution(rulePackage, status string, cacheHit bool, duration time.Duration)

	// RecordCheckoutWait reports how long a checkout waited for a session,
	// whether or not it succeeded.
	RecordCheckoutWait(rulePackage string, wait time.Duration)

	// RecordPoolExhausted reports a checkout that failed on capacity.
	RecordPoolExhausted(rulePackage string)

	// RecordCacheHit and RecordCacheMiss report result cache outcomes.
	RecordCacheHit()
	RecordCacheMiss()
}

// NopObserver is an Observer that discards all events.
type NopObserver struct{}

func (NopObserver) RecordExecution(string, string, bool, time.Duration) {}
func (NopObserver) RecordCheckoutWait(string, time.Duration)            {}
func (NopObserver) RecordPoolExhausted(string)                          {}
func (NopObserver) RecordCacheHit()                                     {}
func (NopObserver) RecordCacheMiss()                                    {}
