package config

import "time"

// Config is the root configuration structure for Mercator Themis.
// It contains all configuration sections for the rule execution runtime:
// rule sources, the evaluation session pool, the result cache, audit
// persistence, and telemetry.
type Config struct {
	// Rules contains configuration for rule-set loading and hot-swap watching.
	Rules RulesConfig `yaml:"rules"`

	// Pool contains configuration for the evaluation session pool.
	Pool PoolConfig `yaml:"pool"`

	// Execution contains configuration for the execution coordinator.
	Execution ExecutionConfig `yaml:"execution"`

	// Cache contains configuration for the result cache.
	Cache CacheConfig `yaml:"cache"`

	// Audit contains configuration for audit record persistence.
	Audit AuditConfig `yaml:"audit"`

	// Telemetry contains configuration for observability including logging,
	// metrics, and distributed tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// RulesConfig contains configuration for rule-set loading.
type RulesConfig struct {
	// Dir is the directory containing compiled rule-set artifacts.
	// Each artifact file defines one rule package version.
	// Default: "rules"
	Dir string `yaml:"dir"`

	// Package is the rule package served by this runtime instance.
	// Default: "default"
	Package string `yaml:"package"`

	// Watch enables hot-swap: the artifact directory is watched and a
	// changed artifact publishes a new rule-set version, invalidating
	// sessions and cache entries bound to the superseded version.
	// Default: true
	Watch bool `yaml:"watch"`

	// DebounceInterval is how long to wait after a file event before
	// publishing a new version, to absorb editor write bursts.
	// Default: 500ms
	DebounceInterval time.Duration `yaml:"debounce_interval"`
}

// PoolConfig contains configuration for the evaluation session pool.
type PoolConfig struct {
	// MaxTotal is the maximum number of sessions the pool will hold,
	// idle and in-use combined. Checkout blocks when all are in use.
	// Default: 16
	MaxTotal int `yaml:"max_total"`

	// MinIdle is the number of idle sessions the pool keeps warm.
	// Sessions beyond MinIdle that stay idle past IdleTimeout are reaped.
	// Default: 2
	MinIdle int `yaml:"min_idle"`

	// IdleTimeout is how long an idle session beyond MinIdle may remain
	// unused before the reaper destroys it.
	// Default: 5m
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// CheckoutTimeout is the maximum time a caller waits for a session
	// before the checkout fails as pool exhaustion.
	// Default: 2s
	CheckoutTimeout time.Duration `yaml:"checkout_timeout"`

	// ErrorThreshold is the number of evaluation errors after which a
	// session is invalidated instead of returned to the pool.
	// Default: 3
	ErrorThreshold int `yaml:"error_threshold"`

	// ReapInterval is how often the idle reaper runs.
	// Default: 30s
	ReapInterval time.Duration `yaml:"reap_interval"`
}

// ExecutionConfig contains configuration for the execution coordinator.
type ExecutionConfig struct {
	// EvaluationTimeout bounds a single call into the evaluation engine.
	// A timed-out session is treated as suspect.
	// Default: 5s
	EvaluationTimeout time.Duration `yaml:"evaluation_timeout"`
}

// CacheConfig contains configuration for the result cache.
type CacheConfig struct {
	// Enabled controls whether results are cached at all.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// MaxEntries bounds the number of cached results (0 = unlimited).
	// Default: 10000
	MaxEntries int `yaml:"max_entries"`

	// MaxBytes bounds the aggregate size of cached results (0 = unlimited).
	// Default: 67108864 (64MB)
	MaxBytes int64 `yaml:"max_bytes"`

	// TTL is the time-to-live for cache entries. Expired entries are
	// misses even before the sweeper removes them.
	// Default: 10m
	TTL time.Duration `yaml:"ttl"`

	// SweepInterval is how often expired entries are swept.
	// Default: 1m
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// AuditConfig contains configuration for audit record persistence.
type AuditConfig struct {
	// Backend selects the storage backend ("sqlite" or "memory").
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	// SQLite contains settings for the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// AsyncBuffer is the size of the async write channel between the
	// coordinator and storage. When full, records are dropped with a log
	// line rather than blocking execution.
	// Default: 1000
	AsyncBuffer int `yaml:"async_buffer"`

	// WriteTimeout bounds a single storage write.
	// Default: 5s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// Retention contains settings for scheduled pruning of old records.
	Retention RetentionConfig `yaml:"retention"`
}

// SQLiteConfig contains settings for the sqlite audit backend.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/audit.db"
	Path string `yaml:"path"`

	// MaxOpenConns is the maximum number of open database connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns is the maximum number of idle database connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables Write-Ahead Logging for better write concurrency.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long to wait when the database file is locked.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig contains settings for scheduled audit pruning.
type RetentionConfig struct {
	// Days is the number of days to keep records (0 = keep forever).
	// Default: 0
	Days int `yaml:"days"`

	// MaxRecords caps the total record count (0 = unlimited). When
	// exceeded, the oldest records are pruned first.
	// Default: 0
	MaxRecords int64 `yaml:"max_records"`

	// Schedule is a cron expression for when pruning runs.
	// Empty disables scheduled pruning.
	// Default: "" (disabled)
	Schedule string `yaml:"schedule"`
}

// TelemetryConfig contains observability configuration.
type TelemetryConfig struct {
	// Logging contains structured logging settings.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains Prometheus metrics settings.
	Metrics MetricsConfig `yaml:"metrics"`

	// Tracing contains OpenTelemetry tracing settings.
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level ("debug", "info", "warn", "error").
	// Default: "info"
	Level string `yaml:"level"`

	// Format is the output format ("json" or "text").
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file:line in log records.
	// Default: false
	AddSource bool `yaml:"add_source"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	// Enabled controls whether metrics are collected and exported.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// ListenAddress is where the metrics endpoint is served.
	// Default: "127.0.0.1:9090"
	ListenAddress string `yaml:"listen_address"`

	// Path is the HTTP path for the metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the Prometheus metric namespace.
	// Default: "mercator"
	Namespace string `yaml:"namespace"`

	// Subsystem is the Prometheus metric subsystem.
	// Default: "themis"
	Subsystem string `yaml:"subsystem"`

	// LatencyBuckets are histogram buckets for execution latencies,
	// in seconds.
	// Default: optimized for rule evaluation (1ms - 10s)
	LatencyBuckets []float64 `yaml:"latency_buckets"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	// Enabled controls whether spans are exported.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// ServiceName identifies this service in traces.
	// Default: "mercator-themis"
	ServiceName string `yaml:"service_name"`

	// Endpoint is the OTLP gRPC collector endpoint.
	// Default: "127.0.0.1:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS for the exporter connection.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the trace sampling ratio in [0, 1].
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`
}
