package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Parsing starts from a fully defaulted configuration, so fields absent from
// the file keep their default values (including booleans that default to
// true). The result is validated before it is returned.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg := NewDefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention THEMIS_SECTION_FIELD (e.g., THEMIS_POOL_MAX_TOTAL) and always
// take precedence over file-based configuration.
//
// The loading sequence is:
//  1. Load YAML from file (with defaults applied)
//  2. Apply environment variable overrides
//  3. Re-validate the final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the
// configuration. Environment variables use the format THEMIS_SECTION_FIELD.
func applyEnvOverrides(cfg *Config) {
	// Rules overrides
	overrideString("THEMIS_RULES_DIR", &cfg.Rules.Dir)
	overrideString("THEMIS_RULES_PACKAGE", &cfg.Rules.Package)
	overrideBool("THEMIS_RULES_WATCH", &cfg.Rules.Watch)
	overrideDuration("THEMIS_RULES_DEBOUNCE_INTERVAL", &cfg.Rules.DebounceInterval)

	// Pool overrides
	overrideInt("THEMIS_POOL_MAX_TOTAL", &cfg.Pool.MaxTotal)
	overrideInt("THEMIS_POOL_MIN_IDLE", &cfg.Pool.MinIdle)
	overrideDuration("THEMIS_POOL_IDLE_TIMEOUT", &cfg.Pool.IdleTimeout)
	overrideDuration("THEMIS_POOL_CHECKOUT_TIMEOUT", &cfg.Pool.CheckoutTimeout)
	overrideInt("THEMIS_POOL_ERROR_THRESHOLD", &cfg.Pool.ErrorThreshold)
	overrideDuration("THEMIS_POOL_REAP_INTERVAL", &cfg.Pool.ReapInterval)

	// Execution overrides
	overrideDuration("THEMIS_EXECUTION_EVALUATION_TIMEOUT", &cfg.Execution.EvaluationTimeout)

	// Cache overrides
	overrideBool("THEMIS_CACHE_ENABLED", &cfg.Cache.Enabled)
	overrideInt("THEMIS_CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)
	overrideInt64("THEMIS_CACHE_MAX_BYTES", &cfg.Cache.MaxBytes)
	overrideDuration("THEMIS_CACHE_TTL", &cfg.Cache.TTL)
	overrideDuration("THEMIS_CACHE_SWEEP_INTERVAL", &cfg.Cache.SweepInterval)

	// Audit overrides
	overrideString("THEMIS_AUDIT_BACKEND", &cfg.Audit.Backend)
	overrideString("THEMIS_AUDIT_SQLITE_PATH", &cfg.Audit.SQLite.Path)
	overrideInt("THEMIS_AUDIT_ASYNC_BUFFER", &cfg.Audit.AsyncBuffer)
	overrideDuration("THEMIS_AUDIT_WRITE_TIMEOUT", &cfg.Audit.WriteTimeout)
	overrideInt("THEMIS_AUDIT_RETENTION_DAYS", &cfg.Audit.Retention.Days)
	overrideInt64("THEMIS_AUDIT_RETENTION_MAX_RECORDS", &cfg.Audit.Retention.MaxRecords)
	overrideString("THEMIS_AUDIT_RETENTION_SCHEDULE", &cfg.Audit.Retention.Schedule)

	// Telemetry overrides
	overrideString("THEMIS_LOG_LEVEL", &cfg.Telemetry.Logging.Level)
	overrideString("THEMIS_LOG_FORMAT", &cfg.Telemetry.Logging.Format)
	overrideBool("THEMIS_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	overrideString("THEMIS_METRICS_LISTEN_ADDRESS", &cfg.Telemetry.Metrics.ListenAddress)
	overrideBool("THEMIS_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	overrideString("THEMIS_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
}

func overrideString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func overrideBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func overrideInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func overrideInt64(key string, dst *int64) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			*dst = i
		}
	}
}

func overrideDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
