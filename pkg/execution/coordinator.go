package execution

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/execution/cache"
	"mercator-hq/themis/pkg/execution/fingerprint"
	"mercator-hq/themis/pkg/execution/pool"
	"mercator-hq/themis/pkg/facts"
	"mercator-hq/themis/pkg/rules"
	"mercator-hq/themis/pkg/telemetry/tracing"
)

// Config contains configuration for the execution coordinator.
type Config struct {
	// RulePackage is the rule package this coordinator executes against.
	RulePackage string

	// EvaluationTimeout bounds a single engine evaluation call.
	// 0 disables the bound.
	EvaluationTimeout time.Duration
}

// Coordinator orchestrates a single rule execution: fact normalization,
// fingerprint derivation, cache lookup, session checkout, engine evaluation,
// cache store, session return, and audit emission. It is the hub every other
// runtime component hangs off.
//
// A Coordinator is safe for concurrent use; the pool and cache are the only
// shared mutable state on the hot path and both synchronize internally.
type Coordinator struct {
	config     Config
	normalizer *facts.Normalizer
	registry   *rules.Registry
	evaluator  rules.Evaluator
	pool       *pool.Pool
	cache      *cache.Cache
	sink       audit.Sink
	observer   Observer
	logger     *slog.Logger
}

// NewCoordinator creates an execution coordinator and subscribes it to
// rule-set hot-swaps: when the registry publishes a new version, the pool is
// swapped to it and the superseded version's cache entries invalidated as a
// coordinated two-step operation.
//
// resultCache may be nil to run without caching, sink may be nil to run
// without auditing, and observer may be nil to run without metrics.
func NewCoordinator(
	cfg Config,
	normalizer *facts.Normalizer,
	registry *rules.Registry,
	evaluator rules.Evaluator,
	sessionPool *pool.Pool,
	resultCache *cache.Cache,
	sink audit.Sink,
	observer Observer,
) *Coordinator {
	if observer == nil {
		observer = NopObserver{}
	}

	c := &Coordinator{
		config:     cfg,
		normalizer: normalizer,
		registry:   registry,
		evaluator:  evaluator,
		pool:       sessionPool,
		cache:      resultCache,
		sink:       sink,
		observer:   observer,
		logger:     slog.Default().With("component", "execution.coordinator"),
	}

	registry.Subscribe(func(superseded, active rules.RuleSetVersion) {
		if active.Package != cfg.RulePackage {
			return
		}
		sessionPool.Swap(active)
		if c.cache != nil && !superseded.IsZero() {
			n := c.cache.InvalidateVersion(superseded)
			c.logger.Info("rule set swapped",
				"superseded", superseded.Key(),
				"active", active.Key(),
				"cache_entries_invalidated", n,
			)
		} else {
			c.logger.Info("rule set swapped", "active", active.Key())
		}
	})

	return c
}

// Execute runs one rule execution for the given raw fact.
//
// Every call terminates in bounded time with either a result or a classified
// error, and emits exactly one audit record covering its exit path:
// validation failure, pool exhaustion, evaluation failure, cache hit, or
// success. Observer failures never affect the outcome.
func (c *Coordinator) Execute(ctx context.Context, correlationID string, raw facts.Raw) (result *rules.Result, err error) {
	start := time.Now()

	var span trace.Span
	ctx, span = otel.Tracer("mercator-hq/themis/pkg/execution").Start(ctx, "execution.Execute",
		trace.WithAttributes(
			attribute.String("rules.package", c.config.RulePackage),
			attribute.String("execution.correlation_id", correlationID),
		))
	defer span.End()

	record := &audit.ExecutionRecord{
		ID:            uuid.New().String(),
		CorrelationID: correlationID,
		RulePackage:   c.config.RulePackage,
		ExecutionDate: start,
	}

	defer func() {
		elapsed := time.Since(start)
		record.ExecutionTimeMs = elapsed.Milliseconds()

		status := "success"
		if err != nil {
			status = FailureKind(err)
			record.Successful = false
			record.FailureKind = status
			record.ErrorMessage = err.Error()
			tracing.SetError(span, err)
		} else if result != nil {
			record.Successful = true
			record.RuleName = result.RuleName
			record.ResultSummary = result.Summary()
		}
		span.SetAttributes(
			attribute.String("execution.status", status),
			attribute.Bool("execution.cache_hit", record.CacheHit),
		)

		c.emit(record)
		c.safeObserve(func() {
			c.observer.RecordExecution(c.config.RulePackage, status, record.CacheHit, elapsed)
		})
	}()

	// Capture one version for the whole call; fingerprint and session are
	// both derived from it, so a hot-swap mid-call can never mix versions.
	version, ok := c.registry.Active(c.config.RulePackage)
	if !ok {
		return nil, pool.ErrNoActiveVersion
	}
	record.RuleSetVersion = version.Key()

	fact, err := c.normalizer.Normalize(raw)
	if err != nil {
		return nil, err
	}
	record.FactType = fact.FactType()

	fp := fingerprint.New(version, fact)

	if c.cache != nil {
		if cached, hit := c.cache.Get(fp); hit {
			// A hit's recorded time spans the whole call, normalization
			// and fingerprinting included, not just the cache lookup.
			record.CacheHit = true
			c.safeObserve(c.observer.RecordCacheHit)
			return cached, nil
		}
		c.safeObserve(c.observer.RecordCacheMiss)
	}

	waitStart := time.Now()
	session, err := c.pool.Checkout(ctx, version)
	c.safeObserve(func() {
		c.observer.RecordCheckoutWait(c.config.RulePackage, time.Since(waitStart))
	})
	if err != nil {
		if FailureKind(err) == FailurePoolExhausted {
			c.safeObserve(func() { c.observer.RecordPoolExhausted(c.config.RulePackage) })
		}
		return nil, err
	}

	// The session goes back on every exit path, cancellation included, so
	// it can never leak as permanently InUse.
	defer func() {
		c.pool.Return(session, err != nil)
	}()

	evalCtx := ctx
	if c.config.EvaluationTimeout > 0 {
		var cancel context.CancelFunc
		evalCtx, cancel = context.WithTimeout(ctx, c.config.EvaluationTimeout)
		defer cancel()
	}

	result, err = c.evaluator.Evaluate(evalCtx, session.Engine(), fact)
	if err != nil {
		if evalCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			err = &TimeoutError{Timeout: c.config.EvaluationTimeout}
		}
		return nil, err
	}

	if c.cache != nil {
		c.cache.Put(fp, version, result)
	}

	return result, nil
}

// emit appends the audit record, logging but never propagating failures. An
// execution's outcome is already decided by the time its record is emitted.
func (c *Coordinator) emit(record *audit.ExecutionRecord) {
	if c.sink == nil {
		return
	}

	if err := c.sink.Append(context.Background(), record); err != nil {
		c.logger.Error("failed to emit execution record",
			"record_id", record.ID,
			"error", err,
		)
	}
}

// safeObserve runs an observer callback, swallowing panics so metrics can
// never fail an execution.
func (c *Coordinator) safeObserve(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Warn("observer panicked", "panic", r)
		}
	}()
	fn()
}
