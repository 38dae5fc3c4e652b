package config

import "time"

// Default values applied by ApplyDefaults. Kept as constants so tests and
// documentation stay in sync with the actual behavior.
const (
	DefaultRulesDir         = "rules"
	DefaultRulesPackage     = "default"
	DefaultDebounceInterval = 500 * time.Millisecond

	DefaultPoolMaxTotal        = 16
	DefaultPoolMinIdle         = 2
	DefaultPoolIdleTimeout     = 5 * time.Minute
	DefaultPoolCheckoutTimeout = 2 * time.Second
	DefaultPoolErrorThreshold  = 3
	DefaultPoolReapInterval    = 30 * time.Second

	DefaultEvaluationTimeout = 5 * time.Second

	DefaultCacheMaxEntries    = 10000
	DefaultCacheMaxBytes      = 64 << 20
	DefaultCacheTTL           = 10 * time.Minute
	DefaultCacheSweepInterval = time.Minute

	DefaultAuditBackend      = "sqlite"
	DefaultAuditAsyncBuffer  = 1000
	DefaultAuditWriteTimeout = 5 * time.Second
	DefaultSQLitePath        = "data/audit.db"
	DefaultSQLiteMaxOpen     = 10
	DefaultSQLiteMaxIdle     = 5
	DefaultSQLiteBusyTimeout = 5 * time.Second

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultMetricsListenAddress = "127.0.0.1:9090"
	DefaultMetricsPath          = "/metrics"
	DefaultMetricsNamespace     = "mercator"
	DefaultMetricsSubsystem     = "themis"

	DefaultTracingServiceName = "mercator-themis"
	DefaultTracingEndpoint    = "127.0.0.1:4317"
)

// NewDefaultConfig returns a configuration populated entirely with defaults.
// Boolean fields that default to true are set here rather than in
// ApplyDefaults, since a false zero value is indistinguishable from an
// explicit false. LoadConfig unmarshals on top of this struct so file values
// still win.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	cfg.Rules.Watch = true
	cfg.Cache.Enabled = true
	cfg.Audit.SQLite.WALMode = true
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Tracing.Insecure = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills in zero-valued fields with default values.
// Explicitly configured values are never overwritten.
func ApplyDefaults(cfg *Config) {
	// Rules
	if cfg.Rules.Dir == "" {
		cfg.Rules.Dir = DefaultRulesDir
	}
	if cfg.Rules.Package == "" {
		cfg.Rules.Package = DefaultRulesPackage
	}
	if cfg.Rules.DebounceInterval == 0 {
		cfg.Rules.DebounceInterval = DefaultDebounceInterval
	}

	// Pool
	if cfg.Pool.MaxTotal == 0 {
		cfg.Pool.MaxTotal = DefaultPoolMaxTotal
	}
	if cfg.Pool.MinIdle == 0 {
		cfg.Pool.MinIdle = DefaultPoolMinIdle
	}
	if cfg.Pool.IdleTimeout == 0 {
		cfg.Pool.IdleTimeout = DefaultPoolIdleTimeout
	}
	if cfg.Pool.CheckoutTimeout == 0 {
		cfg.Pool.CheckoutTimeout = DefaultPoolCheckoutTimeout
	}
	if cfg.Pool.ErrorThreshold == 0 {
		cfg.Pool.ErrorThreshold = DefaultPoolErrorThreshold
	}
	if cfg.Pool.ReapInterval == 0 {
		cfg.Pool.ReapInterval = DefaultPoolReapInterval
	}

	// Execution
	if cfg.Execution.EvaluationTimeout == 0 {
		cfg.Execution.EvaluationTimeout = DefaultEvaluationTimeout
	}

	// Cache
	if cfg.Cache.MaxEntries == 0 {
		cfg.Cache.MaxEntries = DefaultCacheMaxEntries
	}
	if cfg.Cache.MaxBytes == 0 {
		cfg.Cache.MaxBytes = DefaultCacheMaxBytes
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}
	if cfg.Cache.SweepInterval == 0 {
		cfg.Cache.SweepInterval = DefaultCacheSweepInterval
	}

	// Audit
	if cfg.Audit.Backend == "" {
		cfg.Audit.Backend = DefaultAuditBackend
	}
	if cfg.Audit.AsyncBuffer == 0 {
		cfg.Audit.AsyncBuffer = DefaultAuditAsyncBuffer
	}
	if cfg.Audit.WriteTimeout == 0 {
		cfg.Audit.WriteTimeout = DefaultAuditWriteTimeout
	}
	if cfg.Audit.SQLite.Path == "" {
		cfg.Audit.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Audit.SQLite.MaxOpenConns == 0 {
		cfg.Audit.SQLite.MaxOpenConns = DefaultSQLiteMaxOpen
	}
	if cfg.Audit.SQLite.MaxIdleConns == 0 {
		cfg.Audit.SQLite.MaxIdleConns = DefaultSQLiteMaxIdle
	}
	if cfg.Audit.SQLite.BusyTimeout == 0 {
		cfg.Audit.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}

	// Telemetry
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.ListenAddress == "" {
		cfg.Telemetry.Metrics.ListenAddress = DefaultMetricsListenAddress
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Metrics.Subsystem == "" {
		cfg.Telemetry.Metrics.Subsystem = DefaultMetricsSubsystem
	}
	if len(cfg.Telemetry.Metrics.LatencyBuckets) == 0 {
		cfg.Telemetry.Metrics.LatencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultTracingServiceName
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.SampleRatio == 0 {
		cfg.Telemetry.Tracing.SampleRatio = 1.0
	}
}
