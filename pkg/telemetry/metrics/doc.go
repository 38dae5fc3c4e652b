// Package metrics provides Prometheus metrics for the rule execution
// runtime.
//
// # Metric Groups
//
// The Collector registers three metric groups on a private registry:
//
//   - ExecutionMetrics: execution counts, outcomes, and latency histograms
//   - PoolMetrics: session pool occupancy, churn, and checkout waits
//   - CacheMetrics: result cache hits, misses, evictions, and size
//
// All metric names carry the configured namespace and subsystem, so a
// default deployment exposes e.g. mercator_themis_executions_total.
//
// # Exposure
//
// Collector.Handler returns a promhttp handler for the configured registry;
// the run command mounts it on a dedicated listener.
package metrics
