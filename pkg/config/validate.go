package config

import (
	"errors"
	"fmt"
)

// Validate checks the configuration for invalid or inconsistent values.
// It returns an error describing the first problem found, grouped by section
// so operators can locate the offending field quickly.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("configuration is nil")
	}

	if err := validateRules(&cfg.Rules); err != nil {
		return fmt.Errorf("rules: %w", err)
	}
	if err := validatePool(&cfg.Pool); err != nil {
		return fmt.Errorf("pool: %w", err)
	}
	if err := validateExecution(&cfg.Execution); err != nil {
		return fmt.Errorf("execution: %w", err)
	}
	if err := validateCache(&cfg.Cache); err != nil {
		return fmt.Errorf("cache: %w", err)
	}
	if err := validateAudit(&cfg.Audit); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if err := validateTelemetry(&cfg.Telemetry); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}

	return nil
}

func validateRules(cfg *RulesConfig) error {
	if cfg.Dir == "" {
		return errors.New("dir must not be empty")
	}
	if cfg.Package == "" {
		return errors.New("package must not be empty")
	}
	if cfg.DebounceInterval < 0 {
		return fmt.Errorf("debounce_interval must not be negative, got %v", cfg.DebounceInterval)
	}
	return nil
}

func validatePool(cfg *PoolConfig) error {
	if cfg.MaxTotal < 1 {
		return fmt.Errorf("max_total must be at least 1, got %d", cfg.MaxTotal)
	}
	if cfg.MinIdle < 0 {
		return fmt.Errorf("min_idle must not be negative, got %d", cfg.MinIdle)
	}
	if cfg.MinIdle > cfg.MaxTotal {
		return fmt.Errorf("min_idle (%d) must not exceed max_total (%d)", cfg.MinIdle, cfg.MaxTotal)
	}
	if cfg.CheckoutTimeout <= 0 {
		return fmt.Errorf("checkout_timeout must be positive, got %v", cfg.CheckoutTimeout)
	}
	if cfg.IdleTimeout <= 0 {
		return fmt.Errorf("idle_timeout must be positive, got %v", cfg.IdleTimeout)
	}
	if cfg.ErrorThreshold < 1 {
		return fmt.Errorf("error_threshold must be at least 1, got %d", cfg.ErrorThreshold)
	}
	if cfg.ReapInterval <= 0 {
		return fmt.Errorf("reap_interval must be positive, got %v", cfg.ReapInterval)
	}
	return nil
}

func validateExecution(cfg *ExecutionConfig) error {
	if cfg.EvaluationTimeout <= 0 {
		return fmt.Errorf("evaluation_timeout must be positive, got %v", cfg.EvaluationTimeout)
	}
	return nil
}

func validateCache(cfg *CacheConfig) error {
	if !cfg.Enabled {
		return nil
	}
	if cfg.MaxEntries < 0 {
		return fmt.Errorf("max_entries must not be negative, got %d", cfg.MaxEntries)
	}
	if cfg.MaxBytes < 0 {
		return fmt.Errorf("max_bytes must not be negative, got %d", cfg.MaxBytes)
	}
	if cfg.MaxEntries == 0 && cfg.MaxBytes == 0 {
		return errors.New("an enabled cache requires max_entries and/or max_bytes to bound it")
	}
	if cfg.TTL <= 0 {
		return fmt.Errorf("ttl must be positive, got %v", cfg.TTL)
	}
	if cfg.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive, got %v", cfg.SweepInterval)
	}
	return nil
}

func validateAudit(cfg *AuditConfig) error {
	switch cfg.Backend {
	case "sqlite", "memory":
	default:
		return fmt.Errorf("backend must be \"sqlite\" or \"memory\", got %q", cfg.Backend)
	}
	if cfg.AsyncBuffer < 1 {
		return fmt.Errorf("async_buffer must be at least 1, got %d", cfg.AsyncBuffer)
	}
	if cfg.WriteTimeout <= 0 {
		return fmt.Errorf("write_timeout must be positive, got %v", cfg.WriteTimeout)
	}
	if cfg.Backend == "sqlite" && cfg.SQLite.Path == "" {
		return errors.New("sqlite.path must not be empty")
	}
	if cfg.Retention.Days < 0 {
		return fmt.Errorf("retention.days must not be negative, got %d", cfg.Retention.Days)
	}
	if cfg.Retention.MaxRecords < 0 {
		return fmt.Errorf("retention.max_records must not be negative, got %d", cfg.Retention.MaxRecords)
	}
	return nil
}

func validateTelemetry(cfg *TelemetryConfig) error {
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error; got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", cfg.Logging.Format)
	}
	if cfg.Metrics.Enabled && cfg.Metrics.ListenAddress == "" {
		return errors.New("metrics.listen_address must not be empty when metrics are enabled")
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		return fmt.Errorf("tracing.sample_ratio must be in [0, 1], got %v", cfg.Tracing.SampleRatio)
	}
	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		return errors.New("tracing.endpoint must not be empty when tracing is enabled")
	}
	return nil
}
