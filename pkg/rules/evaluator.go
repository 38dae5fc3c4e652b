package rules

import (
	"context"

	"mercator-hq/themis/pkg/facts"
)

// EngineSession is one stateful evaluation context owned by the engine.
// Sessions are expensive to create, are not safe for concurrent use, and are
// pooled by the runtime. Close releases engine resources; a closed session
// must not be evaluated against.
type EngineSession interface {
	Close() error
}

// Evaluator is the contract to the external rule-evaluation engine. The
// runtime treats it as opaque: potentially slow, potentially stateful.
//
// Implementations must allow concurrent calls for distinct sessions; the
// runtime guarantees a single session is never used by two callers at once.
type Evaluator interface {
	// NewSession creates an evaluation session bound to the given rule-set
	// version. This is the expensive initialization the session pool exists
	// to amortize.
	NewSession(ctx context.Context, version RuleSetVersion) (EngineSession, error)

	// Evaluate runs the session's rule set against one normalized fact.
	// Engine-level failures are reported as *EngineError.
	Evaluate(ctx context.Context, session EngineSession, fact *facts.Normalized) (*Result, error)
}
