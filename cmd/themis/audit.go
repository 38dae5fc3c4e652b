package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/themis/pkg/audit"
	"mercator-hq/themis/pkg/audit/retention"
	"mercator-hq/themis/pkg/audit/storage"
	"mercator-hq/themis/pkg/config"
)

var auditFlags struct {
	backend       string
	ruleName      string
	rulePackage   string
	factType      string
	correlationID string
	successful    string
	dateRange     string
	minTimeMs     int64
	limit         int
	offset        int
	format        string
	topLimit      int
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Query the execution audit trail",
	Long: `Query and analyze execution records for reporting and compliance.

Subcommands:
  query  - Query execution records with filters
  stats  - Per-rule aggregates (average execution time, most executed)
  prune  - Run retention pruning once

Examples:
  # Show the 20 most recent failed executions
  themis audit query --successful=false --limit 20

  # Show slow executions for one rule package
  themis audit query --package pricing --min-time-ms 250

  # Per-rule statistics
  themis audit stats`,
}

var auditQueryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query execution records",
	Long: `Query execution records with various filters.

Date Range Format:
  RFC3339 interval format: "start/end"
  Example: "2026-08-29T00:00:00Z/2026-08-30T00:00:00Z"`,
	RunE: queryAudit,
}

var auditStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Per-rule execution aggregates",
	Long: `Show average execution time per rule name and the most frequently
executed rules.`,
	RunE: auditStats,
}

var auditPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Run retention pruning once",
	Long: `Delete execution records past the configured retention period or
beyond the configured record cap, using the audit.retention config section.`,
	RunE: auditPrune,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditQueryCmd, auditStatsCmd, auditPruneCmd)

	auditCmd.PersistentFlags().StringVar(&auditFlags.backend, "backend", "", "backend: sqlite, memory (uses config if not specified)")

	auditQueryCmd.Flags().StringVar(&auditFlags.ruleName, "rule", "", "filter by rule name")
	auditQueryCmd.Flags().StringVar(&auditFlags.rulePackage, "package", "", "filter by rule package")
	auditQueryCmd.Flags().StringVar(&auditFlags.factType, "fact-type", "", "filter by fact type")
	auditQueryCmd.Flags().StringVar(&auditFlags.correlationID, "correlation-id", "", "filter by correlation id")
	auditQueryCmd.Flags().StringVar(&auditFlags.successful, "successful", "", "filter by outcome (true, false)")
	auditQueryCmd.Flags().StringVar(&auditFlags.dateRange, "date-range", "", "execution date range (RFC3339 interval: start/end)")
	auditQueryCmd.Flags().Int64Var(&auditFlags.minTimeMs, "min-time-ms", 0, "minimum execution time in milliseconds")
	auditQueryCmd.Flags().IntVar(&auditFlags.limit, "limit", 100, "max results")
	auditQueryCmd.Flags().IntVar(&auditFlags.offset, "offset", 0, "pagination offset")
	auditQueryCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json")

	auditStatsCmd.Flags().IntVar(&auditFlags.topLimit, "top", 10, "number of most-executed rules to show")
	auditStatsCmd.Flags().StringVar(&auditFlags.format, "format", "text", "output format: text, json")
}

// openAuditStorage builds the storage backend selected by flag or config.
func openAuditStorage() (audit.Storage, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	backendType := auditFlags.backend
	if backendType == "" {
		backendType = cfg.Audit.Backend
	}

	switch backendType {
	case "sqlite":
		return storage.NewSQLiteStorage(&storage.SQLiteConfig{
			Path:         cfg.Audit.SQLite.Path,
			MaxOpenConns: cfg.Audit.SQLite.MaxOpenConns,
			MaxIdleConns: cfg.Audit.SQLite.MaxIdleConns,
			WALMode:      cfg.Audit.SQLite.WALMode,
			BusyTimeout:  cfg.Audit.SQLite.BusyTimeout,
		})
	case "memory":
		return storage.NewMemoryStorage(), nil
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: sqlite, memory)", backendType)
	}
}

func queryAudit(cmd *cobra.Command, args []string) error {
	store, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	query := &audit.Query{
		RuleName:           auditFlags.ruleName,
		RulePackage:        auditFlags.rulePackage,
		FactType:           auditFlags.factType,
		CorrelationID:      auditFlags.correlationID,
		MinExecutionTimeMs: auditFlags.minTimeMs,
		Limit:              auditFlags.limit,
		Offset:             auditFlags.offset,
	}

	if auditFlags.successful != "" {
		switch auditFlags.successful {
		case "true":
			t := true
			query.Successful = &t
		case "false":
			f := false
			query.Successful = &f
		default:
			return fmt.Errorf("invalid --successful value %q (expected true or false)", auditFlags.successful)
		}
	}

	if auditFlags.dateRange != "" {
		parts := strings.Split(auditFlags.dateRange, "/")
		if len(parts) != 2 {
			return fmt.Errorf("invalid date range format (expected: start/end)")
		}

		start, err := time.Parse(time.RFC3339, parts[0])
		if err != nil {
			return fmt.Errorf("invalid start date: %w", err)
		}
		query.StartDate = &start

		end, err := time.Parse(time.RFC3339, parts[1])
		if err != nil {
			return fmt.Errorf("invalid end date: %w", err)
		}
		query.EndDate = &end
	}

	ctx := context.Background()
	records, err := store.Query(ctx, query)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	if auditFlags.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(records)
	}

	fmt.Printf("Total records: %d\n\n", len(records))
	if len(records) == 0 {
		fmt.Println("No records found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "DATE\tPACKAGE\tVERSION\tRULE\tFACT\tOK\tCACHE\tMS\tCORRELATION")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%t\t%d\t%s\n",
			r.ExecutionDate.Format(time.RFC3339),
			r.RulePackage,
			r.RuleSetVersion,
			r.RuleName,
			r.FactType,
			r.Successful,
			r.CacheHit,
			r.ExecutionTimeMs,
			r.CorrelationID,
		)
	}
	return w.Flush()
}

func auditStats(cmd *cobra.Command, args []string) error {
	store, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := context.Background()

	averages, err := store.AverageTimeByRule(ctx)
	if err != nil {
		return fmt.Errorf("aggregate failed: %w", err)
	}

	top, err := store.MostExecuted(ctx, auditFlags.topLimit)
	if err != nil {
		return fmt.Errorf("aggregate failed: %w", err)
	}

	if auditFlags.format == "json" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"average_time_by_rule": averages,
			"most_executed":        top,
		})
	}

	fmt.Println("Average execution time by rule (successful executions):")
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tAVG MS\tCOUNT")
	for _, row := range averages {
		fmt.Fprintf(w, "%s\t%.2f\t%d\n", row.RuleName, row.AverageMs, row.Count)
	}
	w.Flush()

	fmt.Println("\nMost executed rules:")
	w = tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RULE\tCOUNT")
	for _, row := range top {
		fmt.Fprintf(w, "%s\t%d\n", row.RuleName, row.Count)
	}
	return w.Flush()
}

func auditPrune(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	store, err := openAuditStorage()
	if err != nil {
		return err
	}
	defer store.Close()

	pruner := retention.NewPruner(store, &retention.Config{
		RetentionDays: cfg.Audit.Retention.Days,
		MaxRecords:    cfg.Audit.Retention.MaxRecords,
	})

	deleted, err := pruner.Prune(context.Background())
	if err != nil {
		return fmt.Errorf("pruning failed: %w", err)
	}

	fmt.Printf("✓ Deleted %d records\n", deleted)
	return nil
}
