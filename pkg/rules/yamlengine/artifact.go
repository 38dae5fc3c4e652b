package yamlengine

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Artifact is one parsed rule package.
type Artifact struct {
	// Package is the rule package name declared by the artifact.
	Package string `yaml:"package"`

	// DefaultOutcome applies when no rule with an outcome matches.
	DefaultOutcome string `yaml:"default_outcome"`

	// Rules are evaluated in declaration order.
	Rules []Rule `yaml:"rules"`
}

// Rule is a single named rule.
type Rule struct {
	// Name identifies the rule in results and audit records.
	Name string `yaml:"name"`

	// Outcome is the decision this rule produces when it matches. The
	// first matching rule with a non-empty outcome decides the result.
	Outcome string `yaml:"outcome"`

	// Set carries attributes merged into the result when the rule matches.
	Set map[string]any `yaml:"set"`

	// When is the rule condition. A rule without a condition always fires.
	When *Condition `yaml:"when"`
}

// Condition is either a leaf comparison or a composite of subconditions.
type Condition struct {
	// Leaf form.
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value any    `yaml:"value"`

	// Composite forms.
	All []Condition `yaml:"all"`
	Any []Condition `yaml:"any"`
}

// LoadArtifact parses a rule artifact file and validates its structure.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule artifact %q: %w", path, err)
	}

	var artifact Artifact
	if err := yaml.Unmarshal(data, &artifact); err != nil {
		return nil, fmt.Errorf("failed to parse rule artifact %q: %w", path, err)
	}

	if err := artifact.validate(); err != nil {
		return nil, fmt.Errorf("invalid rule artifact %q: %w", path, err)
	}

	return &artifact, nil
}

func (a *Artifact) validate() error {
	if a.Package == "" {
		return fmt.Errorf("package must not be empty")
	}
	if len(a.Rules) == 0 && a.DefaultOutcome == "" {
		return fmt.Errorf("artifact declares no rules and no default_outcome")
	}
	seen := make(map[string]bool, len(a.Rules))
	for i, rule := range a.Rules {
		if rule.Name == "" {
			return fmt.Errorf("rule %d has no name", i)
		}
		if seen[rule.Name] {
			return fmt.Errorf("duplicate rule name %q", rule.Name)
		}
		seen[rule.Name] = true
		if rule.When != nil {
			if err := validateCondition(rule.When); err != nil {
				return fmt.Errorf("rule %q: %w", rule.Name, err)
			}
		}
	}
	return nil
}

func validateCondition(c *Condition) error {
	composite := len(c.All) > 0 || len(c.Any) > 0
	leaf := c.Field != "" || c.Op != ""

	switch {
	case composite && leaf:
		return fmt.Errorf("condition mixes leaf fields with all/any")
	case len(c.All) > 0 && len(c.Any) > 0:
		return fmt.Errorf("condition declares both all and any")
	case composite:
		for i := range c.All {
			if err := validateCondition(&c.All[i]); err != nil {
				return err
			}
		}
		for i := range c.Any {
			if err := validateCondition(&c.Any[i]); err != nil {
				return err
			}
		}
		return nil
	case !leaf:
		return fmt.Errorf("condition is empty")
	}

	if c.Field == "" {
		return fmt.Errorf("leaf condition has no field")
	}
	switch c.Op {
	case "eq", "ne", "lt", "lte", "gt", "gte", "in", "contains", "exists":
		return nil
	default:
		return fmt.Errorf("unsupported operator %q", c.Op)
	}
}
