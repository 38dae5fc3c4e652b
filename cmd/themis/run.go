package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/telemetry/logging"
)

var runFlags struct {
	logLevel string
	dryRun   bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Themis rule execution runtime",
	Long: `Start the rule execution runtime with the specified configuration.

The runtime loads the configured rule package, warms up the session pool,
watches the rules directory for hot-swaps, and serves Prometheus metrics.

Examples:
  # Start with default config
  themis run

  # Start with custom config
  themis run --config /etc/themis/config.yaml

  # Validate config without starting
  themis run --dry-run`,
	RunE: runRuntime,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting")
}

func runRuntime(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Apply flag overrides
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := logging.Setup(&cfg.Telemetry.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	fmt.Printf("Mercator Themis v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Publish the initial rule-set version, via the watcher when hot-swap
	// is enabled, otherwise as a one-time load.
	if cfg.Rules.Watch {
		if err := rt.startWatcher(); err != nil {
			return fmt.Errorf("failed to start rule watcher: %w", err)
		}
	} else {
		if err := rt.publishCurrent(); err != nil {
			return fmt.Errorf("failed to load rule artifact: %w", err)
		}
	}

	version, ok := rt.registry.Active(cfg.Rules.Package)
	if !ok {
		return fmt.Errorf("no rule artifact found for package %q in %s", cfg.Rules.Package, cfg.Rules.Dir)
	}
	fmt.Printf("✓ Rule set loaded: %s\n", version.Key())

	// Warm the pool to min_idle
	if err := rt.pool.WarmUp(ctx); err != nil {
		slog.Warn("pool warm-up incomplete", "error", err)
	}
	fmt.Printf("✓ Session pool ready (max_total=%d, min_idle=%d)\n", cfg.Pool.MaxTotal, cfg.Pool.MinIdle)

	rt.startRetention(ctx)

	// Metrics endpoint plus periodic occupancy gauge refresh
	var metricsSrv *http.Server
	errChan := make(chan error, 1)
	if rt.collector != nil {
		mux := http.NewServeMux()
		mux.Handle(cfg.Telemetry.Metrics.Path, rt.collector.Handler())
		metricsSrv = &http.Server{
			Addr:    cfg.Telemetry.Metrics.ListenAddress,
			Handler: mux,
		}

		go func() {
			slog.Info("metrics endpoint listening",
				"address", cfg.Telemetry.Metrics.ListenAddress,
				"path", cfg.Telemetry.Metrics.Path,
			)
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("metrics server error: %w", err)
			}
		}()

		go refreshGauges(ctx, rt)

		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Telemetry.Metrics.ListenAddress, cfg.Telemetry.Metrics.Path)
	}

	fmt.Println("\nPress Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal %s, shutting down gracefully...\n", sig)
		cancel()

		if metricsSrv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", "error", err)
			}
		}

		fmt.Println("✓ Runtime stopped")
		return nil
	}
}

// refreshGauges periodically pushes pool and cache occupancy snapshots into
// the metrics gauges.
func refreshGauges(ctx context.Context, rt *runtime) {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := rt.pool.Stats()
			rt.collector.UpdatePoolSessions(stats.Idle, stats.InUse)

			if rt.cache != nil {
				cs := rt.cache.Stats()
				rt.collector.UpdateCacheSize(cs.Entries, cs.Bytes)
			}
		}
	}
}
