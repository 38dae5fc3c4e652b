package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"mercator-hq/themis/pkg/config"
	"mercator-hq/themis/pkg/rules"
	"mercator-hq/themis/pkg/rules/yamlengine"
)

var validateFlags struct {
	skipRules bool
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration and rule artifacts",
	Long: `Validate the configuration file and the configured rule package's artifact.

The validate command loads the configuration, applies defaults and environment
overrides, and checks every section for consistency. Unless --skip-rules is
given it also loads the rule artifact for the configured package and reports
the content-addressed version it would publish.

Examples:
  # Validate the default config
  themis validate

  # Validate a specific config file
  themis validate --config /etc/themis/config.yaml

  # Validate config only, without touching the rules directory
  themis validate --skip-rules`,
	RunE: validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&validateFlags.skipRules, "skip-rules", false, "skip rule artifact validation")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	fmt.Println("✓ Configuration valid")

	if validateFlags.skipRules {
		return nil
	}

	path, err := findArtifact(cfg.Rules.Dir, cfg.Rules.Package)
	if err != nil {
		return err
	}

	artifact, err := yamlengine.LoadArtifact(path)
	if err != nil {
		return fmt.Errorf("invalid rule artifact %s: %w", path, err)
	}

	version, err := rules.VersionFromArtifact(cfg.Rules.Package, path)
	if err != nil {
		return fmt.Errorf("failed to derive version for %s: %w", path, err)
	}

	fmt.Printf("✓ Rule artifact valid (%d rules)\n", len(artifact.Rules))
	fmt.Printf("✓ Version: %s\n", version.Key())

	return nil
}

// findArtifact locates the artifact file for a package inside dir, trying
// the .yaml extension first, then .yml.
func findArtifact(dir, pkg string) (string, error) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, pkg+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no artifact found for package %q in %s", pkg, dir)
}
