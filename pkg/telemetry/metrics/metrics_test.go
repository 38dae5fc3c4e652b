package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"mercator-hq/themis/pkg/config"
)

func testConfig() *config.MetricsConfig {
	return &config.MetricsConfig{
		Enabled:        true,
		Namespace:      "test",
		Subsystem:      "metrics",
		LatencyBuckets: []float64{0.001, 0.01, 0.1, 1},
	}
}

// TestCollector_NewCollector verifies collector construction and defaulting.
func TestCollector_NewCollector(t *testing.T) {
	registry := prometheus.NewRegistry()
	cfg := testConfig()

	collector := NewCollector(cfg, registry)
	if collector == nil {
		t.Fatal("NewCollector returned nil")
	}
	if collector.config != cfg {
		t.Error("collector config not set")
	}
	if collector.registry != registry {
		t.Error("collector registry not set")
	}
	if collector.executionMetrics == nil || collector.poolMetrics == nil || collector.cacheMetrics == nil {
		t.Error("sub-collectors not initialized")
	}
}

// TestCollector_Defaults verifies that an empty config picks up the
// runtime namespace and subsystem.
func TestCollector_Defaults(t *testing.T) {
	cfg := &config.MetricsConfig{Enabled: true}

	collector := NewCollector(cfg, nil)
	if cfg.Namespace != "mercator" {
		t.Errorf("default namespace = %q, want mercator", cfg.Namespace)
	}
	if cfg.Subsystem != "themis" {
		t.Errorf("default subsystem = %q, want themis", cfg.Subsystem)
	}
	if len(cfg.LatencyBuckets) == 0 {
		t.Error("default latency buckets not set")
	}
	if collector.Registry() == nil {
		t.Error("Registry() returned nil for implicit registry")
	}
}

// TestCollector_RecordExecution verifies execution counters and the
// cache-hit label mapping.
func TestCollector_RecordExecution(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordExecution("pricing", "success", false, 5*time.Millisecond)
	collector.RecordExecution("pricing", "success", false, 7*time.Millisecond)
	collector.RecordExecution("pricing", "success", true, time.Millisecond)
	collector.RecordExecution("fraud", "engine", false, 3*time.Millisecond)

	miss := testutil.ToFloat64(collector.executionMetrics.executionsTotal.WithLabelValues("pricing", "success", "miss"))
	if miss != 2 {
		t.Errorf("pricing/success/miss = %v, want 2", miss)
	}

	hit := testutil.ToFloat64(collector.executionMetrics.executionsTotal.WithLabelValues("pricing", "success", "hit"))
	if hit != 1 {
		t.Errorf("pricing/success/hit = %v, want 1", hit)
	}

	failed := testutil.ToFloat64(collector.executionMetrics.executionsTotal.WithLabelValues("fraud", "engine", "miss"))
	if failed != 1 {
		t.Errorf("fraud/engine/miss = %v, want 1", failed)
	}
}

// TestCollector_PoolMetrics verifies the pool gauges and counters.
func TestCollector_PoolMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.UpdatePoolSessions(3, 2)
	collector.RecordSessionCreated()
	collector.RecordSessionCreated()
	collector.RecordSessionDestroyed("error_threshold")
	collector.RecordPoolExhausted("pricing")
	collector.RecordCheckoutWait("pricing", 10*time.Millisecond)

	idle := testutil.ToFloat64(collector.poolMetrics.sessions.WithLabelValues("idle"))
	if idle != 3 {
		t.Errorf("idle sessions = %v, want 3", idle)
	}

	inUse := testutil.ToFloat64(collector.poolMetrics.sessions.WithLabelValues("in_use"))
	if inUse != 2 {
		t.Errorf("in_use sessions = %v, want 2", inUse)
	}

	created := testutil.ToFloat64(collector.poolMetrics.createdTotal)
	if created != 2 {
		t.Errorf("created total = %v, want 2", created)
	}

	destroyed := testutil.ToFloat64(collector.poolMetrics.destroyedTotal.WithLabelValues("error_threshold"))
	if destroyed != 1 {
		t.Errorf("destroyed[error_threshold] = %v, want 1", destroyed)
	}

	exhausted := testutil.ToFloat64(collector.poolMetrics.exhaustedTotal.WithLabelValues("pricing"))
	if exhausted != 1 {
		t.Errorf("exhausted[pricing] = %v, want 1", exhausted)
	}
}

// TestCollector_CacheMetrics verifies cache counters and occupancy gauges.
func TestCollector_CacheMetrics(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())

	collector.RecordCacheHit()
	collector.RecordCacheHit()
	collector.RecordCacheMiss()
	collector.RecordCacheEviction("expired")
	collector.RecordCacheEviction("capacity")
	collector.RecordCacheEviction("capacity")
	collector.UpdateCacheSize(42, 4096)

	if hits := testutil.ToFloat64(collector.cacheMetrics.hitsTotal); hits != 2 {
		t.Errorf("hits = %v, want 2", hits)
	}
	if misses := testutil.ToFloat64(collector.cacheMetrics.missesTotal); misses != 1 {
		t.Errorf("misses = %v, want 1", misses)
	}

	capacity := testutil.ToFloat64(collector.cacheMetrics.evictionsTotal.WithLabelValues("capacity"))
	if capacity != 2 {
		t.Errorf("evictions[capacity] = %v, want 2", capacity)
	}

	if entries := testutil.ToFloat64(collector.cacheMetrics.entries); entries != 42 {
		t.Errorf("entries gauge = %v, want 42", entries)
	}
	if bytes := testutil.ToFloat64(collector.cacheMetrics.bytes); bytes != 4096 {
		t.Errorf("bytes gauge = %v, want 4096", bytes)
	}
}

// TestCollector_Disabled verifies that a disabled collector records nothing.
func TestCollector_Disabled(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	collector := NewCollector(cfg, prometheus.NewRegistry())

	collector.RecordExecution("pricing", "success", false, time.Millisecond)
	collector.RecordCheckoutWait("pricing", time.Millisecond)
	collector.RecordPoolExhausted("pricing")
	collector.UpdatePoolSessions(3, 2)
	collector.RecordSessionCreated()
	collector.RecordSessionDestroyed("closed")
	collector.RecordCacheHit()
	collector.RecordCacheMiss()
	collector.RecordCacheEviction("expired")
	collector.UpdateCacheSize(10, 100)

	executions := testutil.ToFloat64(collector.executionMetrics.executionsTotal.WithLabelValues("pricing", "success", "miss"))
	if executions != 0 {
		t.Errorf("executions = %v, want 0 when disabled", executions)
	}
	if idle := testutil.ToFloat64(collector.poolMetrics.sessions.WithLabelValues("idle")); idle != 0 {
		t.Errorf("idle sessions = %v, want 0 when disabled", idle)
	}
	if hits := testutil.ToFloat64(collector.cacheMetrics.hitsTotal); hits != 0 {
		t.Errorf("cache hits = %v, want 0 when disabled", hits)
	}
}

// TestCollector_Handler verifies the scrape endpoint serves recorded metrics.
func TestCollector_Handler(t *testing.T) {
	collector := NewCollector(testConfig(), prometheus.NewRegistry())
	collector.RecordCacheHit()

	server := httptest.NewServer(collector.Handler())
	defer server.Close()

	resp, err := server.Client().Get(server.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("reading body: %v", err)
	}
	if !strings.Contains(string(body), "test_metrics_cache_hits_total") {
		t.Error("scrape output missing cache hits metric")
	}
}
