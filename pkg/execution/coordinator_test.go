package execution

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/audit/storage"
	"mercator-hq/themis/pkg/execution/cache"
	"mercator-hq/themis/pkg/execution/pool"
	"mercator-hq/themis/pkg/facts"
	"mercator-hq/themis/pkg/rules"
)

// stubEngineSession is a no-op engine session.
type stubEngineSession struct{}

func (stubEngineSession) Close() error { return nil }

// stubEvaluator returns canned results and can be made to fail or stall.
type stubEvaluator struct {
	mu        sync.Mutex
	result    *rules.Result
	evalErr   error
	evalDelay time.Duration
	createErr error
	evals     int
}

func (e *stubEvaluator) NewSession(ctx context.Context, version rules.RuleSetVersion) (rules.EngineSession, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.createErr != nil {
		return nil, e.createErr
	}
	return stubEngineSession{}, nil
}

func (e *stubEvaluator) Evaluate(ctx context.Context, session rules.EngineSession, fact *facts.Normalized) (*rules.Result, error) {
	e.mu.Lock()
	delay := e.evalDelay
	e.evals++
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.evalErr != nil {
		return nil, e.evalErr
	}
	if e.result != nil {
		return e.result, nil
	}
	return &rules.Result{Outcome: "approve", RuleName: "r1"}, nil
}

func (e *stubEvaluator) evalCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.evals
}

type fixture struct {
	coordinator *Coordinator
	registry    *rules.Registry
	pool        *pool.Pool
	cache       *cache.Cache
	store       *storage.MemoryStorage
	evaluator   *stubEvaluator
	version     rules.RuleSetVersion
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	if cfg.RulePackage == "" {
		cfg.RulePackage = "pricing"
	}

	ev := &stubEvaluator{}
	registry := rules.NewRegistry()
	p := pool.New(pool.Config{MaxTotal: 4, CheckoutTimeout: time.Second}, ev, nil)
	ca := cache.New(cache.Config{MaxEntries: 64, TTL: time.Minute}, nil)
	store := storage.NewMemoryStorage()

	t.Cleanup(func() {
		p.Close()
		ca.Close()
		store.Close()
	})

	coordinator := NewCoordinator(cfg, facts.NewNormalizer(), registry, ev, p, ca, store, nil)

	version := rules.RuleSetVersion{Package: cfg.RulePackage, Version: "v1", ArtifactRef: "pricing.yaml"}
	registry.Publish(version)

	return &fixture{
		coordinator: coordinator,
		registry:    registry,
		pool:        p,
		cache:       ca,
		store:       store,
		evaluator:   ev,
		version:     version,
	}
}

func validFact() facts.Raw {
	return facts.Raw{"type": "Order", "id": "o1", "total": 250}
}

// requireRecords fetches all audit records, failing the test on error.
func requireRecords(t *testing.T, store *storage.MemoryStorage) []*audit.ExecutionRecord {
	t.Helper()
	records, err := store.Query(context.Background(), &audit.Query{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	return records
}

// TestExecute_Success tests the full success path and its audit record.
func TestExecute_Success(t *testing.T) {
	f := newFixture(t, Config{})

	result, err := f.coordinator.Execute(context.Background(), "corr-1", validFact())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Outcome != "approve" {
		t.Errorf("Expected outcome approve, got %s", result.Outcome)
	}

	records := requireRecords(t, f.store)
	if len(records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(records))
	}
	r := records[0]
	if !r.Successful {
		t.Error("Expected successful record")
	}
	if r.CorrelationID != "corr-1" {
		t.Errorf("Expected correlation corr-1, got %s", r.CorrelationID)
	}
	if r.RuleSetVersion != f.version.Key() {
		t.Errorf("Expected version %s, got %s", f.version.Key(), r.RuleSetVersion)
	}
	if r.RuleName != "r1" {
		t.Errorf("Expected rule r1, got %s", r.RuleName)
	}
	if r.FactType != "Order" {
		t.Errorf("Expected fact type Order, got %s", r.FactType)
	}
	if r.CacheHit {
		t.Error("Expected cache miss on first execution")
	}

	// Session went back to the pool.
	stats := f.pool.Stats()
	if stats.InUse != 0 {
		t.Errorf("Expected no session in use, got %d", stats.InUse)
	}
}

// TestExecute_CacheHit tests that a repeated fact is served from cache
// without touching the engine.
func TestExecute_CacheHit(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if _, err := f.coordinator.Execute(ctx, "corr-1", validFact()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	result, err := f.coordinator.Execute(ctx, "corr-2", validFact())
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Outcome != "approve" {
		t.Errorf("Expected cached outcome approve, got %s", result.Outcome)
	}
	if f.evaluator.evalCount() != 1 {
		t.Errorf("Expected 1 engine evaluation, got %d", f.evaluator.evalCount())
	}

	records := requireRecords(t, f.store)
	if len(records) != 2 {
		t.Fatalf("Expected 2 audit records, got %d", len(records))
	}
	// Newest first.
	if !records[0].CacheHit {
		t.Error("Expected cache hit marked on second record")
	}
	if records[1].CacheHit {
		t.Error("Expected cache miss on first record")
	}
}

// TestExecute_ValidationFailure tests the validation exit path.
func TestExecute_ValidationFailure(t *testing.T) {
	f := newFixture(t, Config{})

	_, err := f.coordinator.Execute(context.Background(), "corr-1", facts.Raw{"id": "x"})
	var verr *facts.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Expected *ValidationError, got %v", err)
	}
	if f.evaluator.evalCount() != 0 {
		t.Error("Expected no engine evaluation for invalid fact")
	}

	records := requireRecords(t, f.store)
	if len(records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(records))
	}
	r := records[0]
	if r.Successful {
		t.Error("Expected failed record")
	}
	if r.FailureKind != FailureValidation {
		t.Errorf("Expected failure kind %s, got %s", FailureValidation, r.FailureKind)
	}
	if r.ErrorMessage == "" {
		t.Error("Expected error message in record")
	}
}

// TestExecute_NoActiveVersion tests executing before any version exists.
func TestExecute_NoActiveVersion(t *testing.T) {
	f := newFixture(t, Config{RulePackage: "fraud"})

	// The fixture published "fraud"; ask for a package nobody published via
	// a second coordinator on the same registry.
	other := NewCoordinator(Config{RulePackage: "unpublished"}, facts.NewNormalizer(), f.registry, f.evaluator, f.pool, f.cache, f.store, nil)

	_, err := other.Execute(context.Background(), "corr-1", validFact())
	if !errors.Is(err, pool.ErrNoActiveVersion) {
		t.Fatalf("Expected ErrNoActiveVersion, got %v", err)
	}

	records := requireRecords(t, f.store)
	if len(records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(records))
	}
	if records[0].FailureKind != FailureNoActiveVersion {
		t.Errorf("Expected failure kind %s, got %s", FailureNoActiveVersion, records[0].FailureKind)
	}
}

// TestExecute_EvaluationFailure tests the engine failure exit path and that
// the failed session is not leaked.
func TestExecute_EvaluationFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.evaluator.evalErr = &rules.EngineError{Package: "pricing", Message: "bad rule state"}

	_, err := f.coordinator.Execute(context.Background(), "corr-1", validFact())
	var eerr *rules.EngineError
	if !errors.As(err, &eerr) {
		t.Fatalf("Expected *EngineError, got %v", err)
	}

	records := requireRecords(t, f.store)
	if len(records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(records))
	}
	if records[0].FailureKind != FailureEngine {
		t.Errorf("Expected failure kind %s, got %s", FailureEngine, records[0].FailureKind)
	}

	stats := f.pool.Stats()
	if stats.InUse != 0 {
		t.Errorf("Expected session returned after failure, in_use=%d", stats.InUse)
	}

	// Failure result is not cached; the next call evaluates again.
	f.evaluator.mu.Lock()
	f.evaluator.evalErr = nil
	f.evaluator.mu.Unlock()
	if _, err := f.coordinator.Execute(context.Background(), "corr-2", validFact()); err != nil {
		t.Fatalf("Execute after recovery failed: %v", err)
	}
	if f.evaluator.evalCount() != 2 {
		t.Errorf("Expected 2 engine evaluations, got %d", f.evaluator.evalCount())
	}
}

// TestExecute_EvaluationTimeout tests the evaluation timeout exit path.
func TestExecute_EvaluationTimeout(t *testing.T) {
	f := newFixture(t, Config{EvaluationTimeout: 30 * time.Millisecond})
	f.evaluator.evalDelay = 200 * time.Millisecond

	_, err := f.coordinator.Execute(context.Background(), "corr-1", validFact())
	var terr *TimeoutError
	if !errors.As(err, &terr) {
		t.Fatalf("Expected *TimeoutError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("Expected timeout to unwrap to context.DeadlineExceeded")
	}

	records := requireRecords(t, f.store)
	if len(records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(records))
	}
	if records[0].FailureKind != FailureTimeout {
		t.Errorf("Expected failure kind %s, got %s", FailureTimeout, records[0].FailureKind)
	}

	if got := f.pool.Stats().InUse; got != 0 {
		t.Errorf("Expected session returned after timeout, in_use=%d", got)
	}
}

// TestExecute_CallerCanceled tests cancellation by the caller.
func TestExecute_CallerCanceled(t *testing.T) {
	f := newFixture(t, Config{})
	f.evaluator.evalDelay = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := f.coordinator.Execute(ctx, "corr-1", validFact())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}

	records := requireRecords(t, f.store)
	if len(records) != 1 {
		t.Fatalf("Expected 1 audit record, got %d", len(records))
	}
	if records[0].FailureKind != FailureCanceled {
		t.Errorf("Expected failure kind %s, got %s", FailureCanceled, records[0].FailureKind)
	}
	if got := f.pool.Stats().InUse; got != 0 {
		t.Errorf("Expected session returned after cancellation, in_use=%d", got)
	}
}

// TestExecute_HotSwapInvalidatesCache tests that a publish invalidates the
// superseded version's cache entries and rebinds the pool.
func TestExecute_HotSwapInvalidatesCache(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	if _, err := f.coordinator.Execute(ctx, "corr-1", validFact()); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	v2 := rules.RuleSetVersion{Package: "pricing", Version: "v2", ArtifactRef: "pricing.yaml"}
	f.registry.Publish(v2)

	// Same fact evaluates again under the new version.
	if _, err := f.coordinator.Execute(ctx, "corr-2", validFact()); err != nil {
		t.Fatalf("Execute after swap failed: %v", err)
	}
	if f.evaluator.evalCount() != 2 {
		t.Errorf("Expected re-evaluation after swap, evals=%d", f.evaluator.evalCount())
	}

	records := requireRecords(t, f.store)
	if records[0].RuleSetVersion != v2.Key() {
		t.Errorf("Expected new version %s, got %s", v2.Key(), records[0].RuleSetVersion)
	}
	if records[0].CacheHit {
		t.Error("Expected cache miss after invalidation")
	}
}

// TestExecute_AuditCompleteness tests exactly one record per call across a
// mixed batch of outcomes.
func TestExecute_AuditCompleteness(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	calls := 0

	// Success.
	f.coordinator.Execute(ctx, "c1", validFact())
	calls++
	// Cache hit.
	f.coordinator.Execute(ctx, "c2", validFact())
	calls++
	// Validation failure.
	f.coordinator.Execute(ctx, "c3", facts.Raw{})
	calls++
	// Evaluation failure.
	f.evaluator.mu.Lock()
	f.evaluator.evalErr = errors.New("boom")
	f.evaluator.mu.Unlock()
	f.coordinator.Execute(ctx, "c4", facts.Raw{"type": "Order", "id": "o2"})
	calls++

	records := requireRecords(t, f.store)
	if len(records) != calls {
		t.Fatalf("Expected %d audit records, got %d", calls, len(records))
	}

	seen := make(map[string]bool)
	for _, r := range records {
		seen[r.CorrelationID] = true
	}
	for _, id := range []string{"c1", "c2", "c3", "c4"} {
		if !seen[id] {
			t.Errorf("Expected record for correlation %s", id)
		}
	}
}

// TestExecute_ObserverPanicTolerated tests that a panicking observer does not
// fail the execution.
func TestExecute_ObserverPanicTolerated(t *testing.T) {
	ev := &stubEvaluator{}
	registry := rules.NewRegistry()
	p := pool.New(pool.Config{MaxTotal: 2, CheckoutTimeout: time.Second}, ev, nil)
	defer p.Close()

	coordinator := NewCoordinator(Config{RulePackage: "pricing"}, facts.NewNormalizer(), registry, ev, p, nil, nil, panickyObserver{})
	registry.Publish(rules.RuleSetVersion{Package: "pricing", Version: "v1"})

	result, err := coordinator.Execute(context.Background(), "corr-1", validFact())
	if err != nil {
		t.Fatalf("Execute failed despite observer panic: %v", err)
	}
	if result.Outcome != "approve" {
		t.Errorf("Expected outcome approve, got %s", result.Outcome)
	}
}

type panickyObserver struct{}

func (panickyObserver) RecordExecution(string, string, bool, time.Duration) { panic("metrics down") }
func (panickyObserver) RecordCheckoutWait(string, time.Duration)            { panic("metrics down") }
func (panickyObserver) RecordPoolExhausted(string)                          { panic("metrics down") }
func (panickyObserver) RecordCacheHit()                                     { panic("metrics down") }
func (panickyObserver) RecordCacheMiss()                                    { panic("metrics down") }

// TestExecute_NoCacheNoSink tests running with cache and audit disabled.
func TestExecute_NoCacheNoSink(t *testing.T) {
	ev := &stubEvaluator{}
	registry := rules.NewRegistry()
	p := pool.New(pool.Config{MaxTotal: 2, CheckoutTimeout: time.Second}, ev, nil)
	defer p.Close()

	coordinator := NewCoordinator(Config{RulePackage: "pricing"}, facts.NewNormalizer(), registry, ev, p, nil, nil, nil)
	registry.Publish(rules.RuleSetVersion{Package: "pricing", Version: "v1"})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := coordinator.Execute(ctx, "corr", validFact()); err != nil {
			t.Fatalf("Execute failed: %v", err)
		}
	}
	// No cache: every call hits the engine.
	if ev.evalCount() != 3 {
		t.Errorf("Expected 3 evaluations without cache, got %d", ev.evalCount())
	}
}

// TestFailureKind tests error classification.
func TestFailureKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind string
	}{
		{"validation", &facts.ValidationError{Message: "x"}, FailureValidation},
		{"exhausted", &pool.ExhaustedError{}, FailurePoolExhausted},
		{"exhausted sentinel", pool.ErrExhausted, FailurePoolExhausted},
		{"timeout", &TimeoutError{Timeout: time.Second}, FailureTimeout},
		{"engine", &rules.EngineError{Message: "x"}, FailureEngine},
		{"superseded", pool.ErrVersionSuperseded, FailureSuperseded},
		{"no version", pool.ErrNoActiveVersion, FailureNoActiveVersion},
		{"create", &pool.CreateError{Version: "v", Cause: errors.New("x")}, FailureSessionCreate},
		{"canceled", context.Canceled, FailureCanceled},
		{"unknown", errors.New("x"), FailureInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureKind(tt.err); got != tt.kind {
				t.Errorf("Expected %s, got %s", tt.kind, got)
			}
		})
	}
}

// TestRetriable tests the retriability classification.
func TestRetriable(t *testing.T) {
	if Retriable(&facts.ValidationError{Message: "x"}) {
		t.Error("Expected validation failure not retriable")
	}
	if !Retriable(&pool.ExhaustedError{}) {
		t.Error("Expected pool exhaustion retriable")
	}
	if !Retriable(&TimeoutError{Timeout: time.Second}) {
		t.Error("Expected timeout retriable")
	}
	if !Retriable(pool.ErrVersionSuperseded) {
		t.Error("Expected superseded retriable")
	}
	if Retriable(&rules.EngineError{Message: "x"}) {
		t.Error("Expected engine failure not retriable")
	}
}

// countingObserver counts pool exhaustion events and ignores the rest.
type countingObserver struct {
	exhausted atomic.Int32
}

func (o *countingObserver) RecordExecution(string, string, bool, time.Duration) {}
func (o *countingObserver) RecordCheckoutWait(string, time.Duration)            {}
func (o *countingObserver) RecordPoolExhausted(string)                          { o.exhausted.Add(1) }
func (o *countingObserver) RecordCacheHit()                                     {}
func (o *countingObserver) RecordCacheMiss()                                    {}

// TestExecute_PoolExhausted tests that a capacity-starved call fails with
// the exhaustion classification, is audited, and reaches the observer.
func TestExecute_PoolExhausted(t *testing.T) {
	ev := &stubEvaluator{evalDelay: 300 * time.Millisecond}
	registry := rules.NewRegistry()
	p := pool.New(pool.Config{MaxTotal: 1, CheckoutTimeout: 30 * time.Millisecond}, ev, nil)
	defer p.Close()
	store := storage.NewMemoryStorage()
	defer store.Close()
	obs := &countingObserver{}

	coordinator := NewCoordinator(Config{RulePackage: "pricing"}, facts.NewNormalizer(), registry, ev, p, nil, store, obs)
	registry.Publish(rules.RuleSetVersion{Package: "pricing", Version: "v1"})

	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, err := coordinator.Execute(ctx, "corr-holder", validFact()); err != nil {
			t.Errorf("Holder execute failed: %v", err)
		}
	}()

	// Wait for the stalled evaluation to borrow the only session.
	deadline := time.Now().Add(2 * time.Second)
	for p.Stats().InUse != 1 {
		if time.Now().After(deadline) {
			t.Fatal("Session never checked out")
		}
		time.Sleep(time.Millisecond)
	}

	_, err := coordinator.Execute(ctx, "corr-starved", validFact())
	if !errors.Is(err, pool.ErrExhausted) {
		t.Fatalf("Expected ErrExhausted, got %v", err)
	}
	if FailureKind(err) != FailurePoolExhausted {
		t.Errorf("Expected failure kind %s, got %s", FailurePoolExhausted, FailureKind(err))
	}
	if got := obs.exhausted.Load(); got != 1 {
		t.Errorf("Expected 1 pool exhausted event, got %d", got)
	}

	<-done

	// Both calls audited: the starved one failed, the holder succeeded.
	records := requireRecords(t, store)
	if len(records) != 2 {
		t.Fatalf("Expected 2 audit records, got %d", len(records))
	}
	var starved *audit.ExecutionRecord
	for _, r := range records {
		if r.CorrelationID == "corr-starved" {
			starved = r
		}
	}
	if starved == nil {
		t.Fatal("Missing audit record for the starved call")
	}
	if starved.Successful {
		t.Error("Expected starved record marked failed")
	}
	if starved.FailureKind != FailurePoolExhausted {
		t.Errorf("Expected failure kind %s, got %s", FailurePoolExhausted, starved.FailureKind)
	}
}
