package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"mercator-hq/themis/pkg/config"
)

// PoolMetrics tracks session pool occupancy and churn.
//
// Metrics:
//   - mercator_themis_pool_sessions: current sessions by state
//   - mercator_themis_pool_sessions_created_total: total sessions created
//   - mercator_themis_pool_sessions_destroyed_total: total destroyed by reason
//   - mercator_themis_pool_checkout_wait_seconds: checkout wait histogram
//   - mercator_themis_pool_exhausted_total: checkouts failed on capacity
type PoolMetrics struct {
	sessions       *prometheus.GaugeVec
	createdTotal   prometheus.Counter
	destroyedTotal *prometheus.CounterVec
	checkoutWait   *prometheus.HistogramVec
	exhaustedTotal *prometheus.CounterVec
}

// NewPoolMetrics creates and registers pool metrics with the provided registry.
func NewPoolMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PoolMetrics {
	pm := &PoolMetrics{
		sessions: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pool_sessions",
				Help:      "Current number of pooled sessions by state",
			},
			[]string{"state"},
		),

		createdTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pool_sessions_created_total",
				Help:      "Total number of engine sessions created",
			},
		),

		destroyedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pool_sessions_destroyed_total",
				Help:      "Total number of engine sessions destroyed",
			},
			[]string{"reason"},
		),

		checkoutWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pool_checkout_wait_seconds",
				Help:      "Time spent waiting for a session checkout",
				Buckets:   cfg.LatencyBuckets,
			},
			[]string{"package"},
		),

		exhaustedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "pool_exhausted_total",
				Help:      "Total number of checkouts that failed because the pool was exhausted",
			},
			[]string{"package"},
		),
	}

	registry.MustRegister(
		pm.sessions,
		pm.createdTotal,
		pm.destroyedTotal,
		pm.checkoutWait,
		pm.exhaustedTotal,
	)

	return pm
}

// UpdateSessions updates the pool occupancy gauges.
func (pm *PoolMetrics) UpdateSessions(idle, inUse int) {
	pm.sessions.WithLabelValues("idle").Set(float64(idle))
	pm.sessions.WithLabelValues("in_use").Set(float64(inUse))
}

// RecordCreated records a session creation.
func (pm *PoolMetrics) RecordCreated() {
	pm.createdTotal.Inc()
}

// RecordDestroyed records a session destruction with its cause
// ("idle_reaped", "error_threshold", "superseded", "shutdown", "failed").
func (pm *PoolMetrics) RecordDestroyed(reason string) {
	pm.destroyedTotal.WithLabelValues(reason).Inc()
}

// RecordCheckoutWait records how long a checkout waited.
func (pm *PoolMetrics) RecordCheckoutWait(rulePackage string, wait time.Duration) {
	pm.checkoutWait.WithLabelValues(rulePackage).Observe(wait.Seconds())
}

// RecordExhausted records an exhausted checkout.
func (pm *PoolMetrics) RecordExhausted(rulePackage string) {
	pm.exhaustedTotal.WithLabelValues(rulePackage).Inc()
}
