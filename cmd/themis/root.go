package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "themis",
	Short: "Mercator Themis - business rule execution runtime",
	Long: `Mercator Themis is a business rule execution runtime that evaluates
versioned rule sets against submitted facts.

It provides:
  - A bounded pool of reusable rule-engine evaluation sessions
  - Content-addressed rule-set versions with hot-swap on artifact change
  - A fingerprint-keyed result cache with TTL and LRU eviction
  - An append-only audit trail with execution-time accounting
  - Prometheus metrics and optional OpenTelemetry tracing

For more information, visit: https://github.com/mercator-hq/themis`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}
