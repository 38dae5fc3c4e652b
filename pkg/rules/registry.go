package rules

import (
	"log/slog"
	"sync"
)

// SwapFunc is notified when a package's active version changes. The
// superseded version is zero on first publish. Callbacks run synchronously
// on the publishing goroutine, so the pool and cache invalidation steps of a
// hot-swap complete before Publish returns.
type SwapFunc func(superseded, active RuleSetVersion)

// Registry tracks the active rule-set version per package. It is the single
// source a coordinator reads a version from at the start of an execution, so
// one call never mixes sessions and cache entries from different versions.
type Registry struct {
	mu     sync.RWMutex
	active map[string]RuleSetVersion
	subs   []SwapFunc
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]RuleSetVersion),
		logger: slog.Default().With("component", "rules.registry"),
	}
}

// Subscribe registers a callback for version swaps. Subscriptions must be
// made before Publish is first called.
func (r *Registry) Subscribe(fn SwapFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, fn)
}

// Active returns the active version for a package.
func (r *Registry) Active(pkg string) (RuleSetVersion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.active[pkg]
	return v, ok
}

// Publish makes version the active one for its package and notifies
// subscribers of the superseded version. Publishing the identical version is
// a no-op.
func (r *Registry) Publish(version RuleSetVersion) {
	r.mu.Lock()
	superseded, had := r.active[version.Package]
	if had && superseded == version {
		r.mu.Unlock()
		return
	}
	r.active[version.Package] = version
	subs := make([]SwapFunc, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	if had {
		r.logger.Info("rule-set version superseded",
			"package", version.Package,
			"superseded", superseded.Version,
			"active", version.Version,
		)
	} else {
		r.logger.Info("rule-set version published",
			"package", version.Package,
			"version", version.Version,
		)
	}

	for _, fn := range subs {
		if had {
			fn(superseded, version)
		} else {
			fn(RuleSetVersion{}, version)
		}
	}
}
