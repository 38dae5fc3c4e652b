// Package config provides configuration management for Mercator Themis.
//
// This package handles loading, validating, and managing configuration from
// YAML files with environment variable overrides. It provides a type-safe
// configuration system with validation and sensible defaults.
//
// # Configuration Loading
//
// Configuration can be loaded in two ways:
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("config.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("config.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention THEMIS_SECTION_FIELD.
// For example:
//
//   - THEMIS_POOL_MAX_TOTAL overrides pool.max_total
//   - THEMIS_CACHE_TTL overrides cache.ttl
//   - THEMIS_LOG_LEVEL overrides telemetry.logging.level
//
// Environment variables always take precedence over file-based configuration.
//
// # Configuration Precedence
//
// Configuration values are applied in the following order (later overrides
// earlier):
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example Configuration
//
// Here is a minimal configuration file:
//
//	rules:
//	  dir: "./rules"
//	  package: "loan-approval"
//
//	pool:
//	  max_total: 16
//	  min_idle: 2
//	  checkout_timeout: 2s
//
//	cache:
//	  max_entries: 10000
//	  ttl: 10m
//
//	audit:
//	  backend: "sqlite"
//	  sqlite:
//	    path: "data/audit.db"
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
//
// For testing, prefer constructing Config values directly (or via
// NewDefaultConfig) and injecting them into component constructors; nothing in
// this package holds global state.
package config
