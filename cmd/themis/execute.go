package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/execution"
	"mercator-hq/themis/pkg/facts"
	"mercator-hq/themis/pkg/telemetry/logging"
)

var executeFlags struct {
	factFile      string
	correlationID string
}

var executeCmd = &cobra.Command{
	Use:   "execute",
	Short: "Execute a single fact against the configured rule set",
	Long: `Execute one fact through the full runtime: normalization, cache,
session pool, engine evaluation, and audit recording.

The fact is a JSON object that must carry "type" and "id" fields plus any
attributes the rule set conditions reference.

Examples:
  # Execute a fact from a file
  themis execute --fact fact.json

  # Execute a fact from stdin
  echo '{"type":"Customer","id":"C1","balance":1200}' | themis execute --fact -

  # Tag the execution with a caller correlation id
  themis execute --fact fact.json --correlation-id order-8812`,
	RunE: executeFact,
}

func init() {
	rootCmd.AddCommand(executeCmd)

	executeCmd.Flags().StringVarP(&executeFlags.factFile, "fact", "f", "", "fact JSON file path, or - for stdin (required)")
	executeCmd.Flags().StringVar(&executeFlags.correlationID, "correlation-id", "", "correlation id recorded on the audit trail (default: generated)")
	executeCmd.MarkFlagRequired("fact")
}

func executeFact(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	} else {
		// One-shot invocations keep log noise down unless asked
		cfg.Telemetry.Logging.Level = "warn"
	}
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if _, err := logging.Setup(&cfg.Telemetry.Logging); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	raw, err := readFact(executeFlags.factFile)
	if err != nil {
		return err
	}

	rt, err := buildRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	if err := rt.publishCurrent(); err != nil {
		return fmt.Errorf("failed to load rule artifact: %w", err)
	}

	correlationID := executeFlags.correlationID
	if correlationID == "" {
		correlationID = uuid.New().String()
	}

	result, err := rt.coordinator.Execute(context.Background(), correlationID, raw)
	if err != nil {
		if execution.Retriable(err) {
			return fmt.Errorf("execution failed (retriable, kind=%s): %w", execution.FailureKind(err), err)
		}
		return fmt.Errorf("execution failed (kind=%s): %w", execution.FailureKind(err), err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	fmt.Println(string(out))
	return nil
}

// readFact reads and decodes a fact JSON object from a file or stdin.
func readFact(path string) (facts.Raw, error) {
	var data []byte
	var err error

	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read fact: %w", err)
	}

	var raw facts.Raw
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid fact JSON: %w", err)
	}

	return raw, nil
}
