package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/themis/pkg/config"
)

// ExecutionMetrics tracks metrics related to rule execution.
//
// Metrics:
//   - mercator_themis_executions_total: execution count by package, status, cache
//   - mercator_themis_execution_duration_seconds: execution latency histogram
type ExecutionMetrics struct {
	executionsTotal   *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
}

// NewExecutionMetrics creates and registers execution metrics with the
// provided registry.
func NewExecutionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ExecutionMetrics {
	em := &ExecutionMetrics{
		executionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "executions_total",
				Help:      "Total number of rule executions processed",
			},
			[]string{"package", "status", "cache"},
		),

		executionDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "execution_duration_seconds",
				Help:      "Duration of rule executions in seconds",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"package", "cache"},
		),
	}

	registry.MustRegister(
		em.executionsTotal,
		em.executionDuration,
	)

	return em
}

// RecordExecution records metrics for a completed execution.
func (em *ExecutionMetrics) RecordExecution(rulePackage, status string, cacheHit bool, duration time.Duration) {
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}

	em.executionsTotal.WithLabelValues(rulePackage, status, cache).Inc()
	em.executionDuration.WithLabelValues(rulePackage, cache).Observe(duration.Seconds())
}
