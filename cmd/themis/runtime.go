package main

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/audit/recorder"
	"mercator-hq/themis/pkg/audit/retention"
	"mercator-hq/themis/pkg/audit/storage"
	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/execution"
	"mercator-hq/themis/pkg/execution/cache"
	"mercator-hq/themis/pkg/execution/pool"
	"mercator-hq/themis/pkg/facts"
	"mercator-hq/themis/pkg/rules"
	"mercator-hq/themis/pkg/rules/yamlengine"
	"mercator-hq/themis/pkg/telemetry/metrics"
	"mercator-hq/themis/pkg/telemetry/tracing"
)

// runtime holds the assembled execution stack. The run and execute commands
// share its construction; Close tears components down in reverse dependency
// order.
type runtime struct {
	cfg         *config.Config
	storage     audit.Storage
	recorder    *recorder.Recorder
	pruner      *retention.Pruner
	registry    *rules.Registry
	pool        *pool.Pool
	cache       *cache.Cache
	collector   *metrics.Collector
	tracer      *tracing.Tracer
	coordinator *execution.Coordinator
	watcher     *rules.Watcher
}

// buildRuntime wires the full execution stack from configuration: audit
// storage and async recorder, session pool, result cache, metrics collector,
// tracer, and the coordinator subscribed to the version registry.
//
// It does not publish a rule-set version; callers start the watcher (run) or
// publish once (execute) afterwards, then warm up the pool.
func buildRuntime(cfg *config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg, registry: rules.NewRegistry()}

	// Audit backend and async write path
	var err error
	switch cfg.Audit.Backend {
	case "sqlite":
		rt.storage, err = storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.Audit.SQLite.Path,
			MaxOpenConns: cfg.Audit.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Audit.SQLite.MaxIdleConns,
			WALMode:      cfg.Audit.SQLite.WALMode,
			BusyTimeout:  cfg.Audit.SQLite.BusyTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite storage: %w", err)
		}
	case "memory":
		rt.storage = storage.NewMemoryStorage()
	default:
		return nil, fmt.Errorf("unsupported audit backend: %s", cfg.Audit.Backend)
	}

	rt.recorder = recorder.NewRecorder(rt.storage, &recorder.Config{
		AsyncBuffer:  cfg.Audit.AsyncBuffer,
		WriteTimeout: cfg.Audit.WriteTimeout,
	})

	// Metrics
	if cfg.Telemetry.Metrics.Enabled {
		rt.collector = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	// Tracing
	rt.tracer, err = tracing.New(&cfg.Telemetry.Tracing)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	// Engine, pool, cache
	engine := yamlengine.New(slog.Default())

	poolCfg := pool.Config{
		MaxTotal:        cfg.Pool.MaxTotal,
		MinIdle:         cfg.Pool.MinIdle,
		IdleTimeout:     cfg.Pool.IdleTimeout,
		CheckoutTimeout: cfg.Pool.CheckoutTimeout,
		ErrorThreshold:  cfg.Pool.ErrorThreshold,
		ReapInterval:    cfg.Pool.ReapInterval,
	}
	if rt.collector != nil {
		poolCfg.Observer = rt.collector
	}
	rt.pool = pool.New(poolCfg, engine, slog.Default())

	if cfg.Cache.Enabled {
		cacheCfg := cache.Config{
			MaxEntries:    cfg.Cache.MaxEntries,
			MaxBytes:      cfg.Cache.MaxBytes,
			TTL:           cfg.Cache.TTL,
			SweepInterval: cfg.Cache.SweepInterval,
		}
		if rt.collector != nil {
			cacheCfg.Observer = rt.collector
		}
		rt.cache = cache.New(cacheCfg, slog.Default())
	}

	// Coordinator
	var observer execution.Observer
	if rt.collector != nil {
		observer = rt.collector
	}

	normalizer := facts.NewNormalizer()

	rt.coordinator = execution.NewCoordinator(
		execution.Config{
			RulePackage:       cfg.Rules.Package,
			EvaluationTimeout: cfg.Execution.EvaluationTimeout,
		},
		normalizer,
		rt.registry,
		engine,
		rt.pool,
		rt.cache,
		rt.recorder,
		observer,
	)

	return rt, nil
}

// publishCurrent loads the configured package's artifact and publishes its
// content-addressed version to the registry, driving the initial pool swap.
func (rt *runtime) publishCurrent() error {
	path, err := findArtifact(rt.cfg.Rules.Dir, rt.cfg.Rules.Package)
	if err != nil {
		return err
	}

	version, err := rules.VersionFromArtifact(rt.cfg.Rules.Package, path)
	if err != nil {
		return fmt.Errorf("failed to derive version for %s: %w", path, err)
	}

	rt.registry.Publish(version)
	return nil
}

// startWatcher begins watching the rules directory for artifact changes.
func (rt *runtime) startWatcher() error {
	w, err := rules.NewWatcher(rules.WatcherConfig{
		Dir:              rt.cfg.Rules.Dir,
		Package:          rt.cfg.Rules.Package,
		DebounceInterval: rt.cfg.Rules.DebounceInterval,
	}, rt.registry, slog.Default())
	if err != nil {
		return err
	}

	if err := w.Start(); err != nil {
		return err
	}

	rt.watcher = w
	return nil
}

// startRetention starts scheduled audit pruning when a schedule is configured.
func (rt *runtime) startRetention(ctx context.Context) {
	if rt.cfg.Audit.Retention.Schedule == "" {
		return
	}

	rt.pruner = retention.NewPruner(rt.storage, &retention.Config{
		RetentionDays: rt.cfg.Audit.Retention.Days,
		MaxRecords:    rt.cfg.Audit.Retention.MaxRecords,
		PruneSchedule: rt.cfg.Audit.Retention.Schedule,
	})

	if err := rt.pruner.Start(ctx); err != nil {
		slog.Warn("failed to start retention scheduler", "error", err)
		rt.pruner = nil
		return
	}

	if next := rt.pruner.NextPruning(); next != nil {
		slog.Debug("audit retention scheduler started", "next_pruning", next)
	}
}

// Close shuts the runtime down in reverse dependency order: stop accepting
// new versions, drain the pool and cache, flush the audit recorder, then
// close storage.
func (rt *runtime) Close() {
	if rt.watcher != nil {
		rt.watcher.Stop()
	}
	if rt.pruner != nil {
		rt.pruner.Stop()
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
	if rt.cache != nil {
		rt.cache.Close()
	}
	if rt.recorder != nil {
		rt.recorder.Close()
	}
	if rt.storage != nil {
		if err := rt.storage.Close(); err != nil {
			slog.Error("failed to close audit storage", "error", err)
		}
	}
	if rt.tracer != nil {
		if err := rt.tracer.Shutdown(context.Background()); err != nil {
			slog.Error("failed to shut down tracer", "error", err)
		}
	}
}
