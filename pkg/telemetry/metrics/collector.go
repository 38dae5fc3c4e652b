package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/themis/pkg/config"
)

// Collector is the main orchestrator for all Prometheus metrics in the
// runtime. It manages metric registration and provides a unified interface
// for recording metrics across all components.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	executionMetrics *ExecutionMetrics
	poolMetrics      *PoolMetrics
	cacheMetrics     *CacheMetrics
}

// NewCollector creates a new metrics collector with the specified
// configuration and Prometheus registry. If registry is nil, a fresh
// registry is created.
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	// Set defaults if not specified
	if cfg.Namespace == "" {
		cfg.Namespace = "mercator"
	}
	if cfg.Subsystem == "" {
		cfg.Subsystem = "themis"
	}
	if len(cfg.LatencyBuckets) == 0 {
		// Optimized for rule evaluation latencies (1ms - 10s)
		cfg.LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}

	c := &Collector{
		config:   cfg,
		registry: registry,
	}

	c.executionMetrics = NewExecutionMetrics(cfg, registry)
	c.poolMetrics = NewPoolMetrics(cfg, registry)
	c.cacheMetrics = NewCacheMetrics(cfg, registry)

	return c
}

// RecordExecution records metrics for a completed rule execution.
//
// Parameters:
//   - rulePackage: rule package name
//   - status: execution status ("success", "validation", "pool_exhausted",
//     "timeout", "engine", ...)
//   - cacheHit: whether the result was served from cache
//   - duration: measured execution time
func (c *Collector) RecordExecution(rulePackage, status string, cacheHit bool, duration time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.executionMetrics.RecordExecution(rulePackage, status, cacheHit, duration)
}

// RecordCheckoutWait records how long a checkout waited for a session.
func (c *Collector) RecordCheckoutWait(rulePackage string, wait time.Duration) {
	if !c.config.Enabled {
		return
	}

	c.poolMetrics.RecordCheckoutWait(rulePackage, wait)
}

// RecordPoolExhausted records a checkout that failed because the pool was
// at capacity for the whole timeout window.
func (c *Collector) RecordPoolExhausted(rulePackage string) {
	if !c.config.Enabled {
		return
	}

	c.poolMetrics.RecordExhausted(rulePackage)
}

// UpdatePoolSessions updates the pool occupancy gauges.
func (c *Collector) UpdatePoolSessions(idle, inUse int) {
	if !c.config.Enabled {
		return
	}

	c.poolMetrics.UpdateSessions(idle, inUse)
}

// RecordSessionCreated records a session creation.
func (c *Collector) RecordSessionCreated() {
	if !c.config.Enabled {
		return
	}

	c.poolMetrics.RecordCreated()
}

// RecordSessionDestroyed records a session destruction.
func (c *Collector) RecordSessionDestroyed(reason string) {
	if !c.config.Enabled {
		return
	}

	c.poolMetrics.RecordDestroyed(reason)
}

// RecordCacheHit records a result cache hit.
func (c *Collector) RecordCacheHit() {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.RecordHit()
}

// RecordCacheMiss records a result cache miss.
func (c *Collector) RecordCacheMiss() {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.RecordMiss()
}

// RecordCacheEviction records a cache eviction with its cause
// ("capacity", "expired", "invalidated").
func (c *Collector) RecordCacheEviction(reason string) {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.RecordEviction(reason)
}

// UpdateCacheSize updates the cache occupancy gauges.
func (c *Collector) UpdateCacheSize(entries int, bytes int64) {
	if !c.config.Enabled {
		return
	}

	c.cacheMetrics.UpdateSize(entries, bytes)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}
