package yamlengine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"mercator-hq/themis/pkg/facts"
	"mercator-hq/themis/pkg/rules"
)

// Engine implements rules.Evaluator over YAML rule artifacts. Each session
// parses the version's artifact once and reuses the parsed form for every
// evaluation, which is the expensive-initialization shape the session pool
// is built around.
type Engine struct {
	logger *slog.Logger
}

// New creates a YAML-backed evaluation engine.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger.With("component", "yamlengine")}
}

// session is one evaluation context. Not safe for concurrent use; the pool
// guarantees single-caller access.
type session struct {
	artifact  *Artifact
	version   rules.RuleSetVersion
	evalCount int64
	closed    atomic.Bool
}

// Close releases the session. Evaluating against a closed session fails
// with rules.ErrSessionClosed.
func (s *session) Close() error {
	s.closed.Store(true)
	return nil
}

// NewSession parses the artifact referenced by version into a fresh session.
func (e *Engine) NewSession(ctx context.Context, version rules.RuleSetVersion) (rules.EngineSession, error) {
	if version.ArtifactRef == "" {
		return nil, fmt.Errorf("%w: %s", rules.ErrUnknownVersion, version)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	artifact, err := LoadArtifact(version.ArtifactRef)
	if err != nil {
		return nil, &rules.EngineError{
			Package: version.Package,
			Message: "failed to load artifact",
			Cause:   err,
		}
	}
	if artifact.Package != version.Package {
		return nil, &rules.EngineError{
			Package: version.Package,
			Message: fmt.Sprintf("artifact declares package %q", artifact.Package),
		}
	}

	e.logger.Debug("session created",
		"version", version.Key(),
		"rules", len(artifact.Rules),
	)

	return &session{artifact: artifact, version: version}, nil
}

// Evaluate runs the session's rules against one normalized fact. Rules fire
// in declaration order; the first matching rule with a non-empty outcome
// decides the result, and Set attributes from every fired rule are merged.
func (e *Engine) Evaluate(ctx context.Context, es rules.EngineSession, fact *facts.Normalized) (*rules.Result, error) {
	s, ok := es.(*session)
	if !ok {
		return nil, &rules.EngineError{Message: fmt.Sprintf("foreign session type %T", es)}
	}
	if s.closed.Load() {
		return nil, rules.ErrSessionClosed
	}

	var fields map[string]any
	if err := json.Unmarshal(fact.Canonical(), &fields); err != nil {
		return nil, &rules.EngineError{
			Package: s.version.Package,
			Message: "fact is not decodable",
			Cause:   err,
		}
	}

	s.evalCount++

	result := &rules.Result{
		Outcome:    s.artifact.DefaultOutcome,
		Attributes: make(map[string]any),
	}

	for i := range s.artifact.Rules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rule := &s.artifact.Rules[i]
		matched, err := e.match(rule.When, fields)
		if err != nil {
			return nil, &rules.EngineError{
				Package: s.version.Package,
				Rule:    rule.Name,
				Message: "condition evaluation failed",
				Cause:   err,
			}
		}
		if !matched {
			continue
		}

		result.FiredRules = append(result.FiredRules, rule.Name)
		for k, v := range rule.Set {
			result.Attributes[k] = v
		}
		if rule.Outcome != "" && result.RuleName == "" {
			result.Outcome = rule.Outcome
			result.RuleName = rule.Name
		}
	}

	if len(result.Attributes) == 0 {
		result.Attributes = nil
	}
	return result, nil
}

// match evaluates a condition tree. A nil condition always matches.
func (e *Engine) match(c *Condition, fields map[string]any) (bool, error) {
	if c == nil {
		return true, nil
	}

	if len(c.All) > 0 {
		for i := range c.All {
			ok, err := e.match(&c.All[i], fields)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}

	if len(c.Any) > 0 {
		for i := range c.Any {
			ok, err := e.match(&c.Any[i], fields)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}

	val, present := lookupField(fields, c.Field)

	switch c.Op {
	case "exists":
		return present, nil
	case "eq":
		return present && compareEqual(val, c.Value), nil
	case "ne":
		return !present || !compareEqual(val, c.Value), nil
	case "lt", "lte", "gt", "gte":
		if !present {
			return false, nil
		}
		return compareOrdered(val, c.Value, c.Op)
	case "in":
		if !present {
			return false, nil
		}
		list, ok := c.Value.([]any)
		if !ok {
			return false, fmt.Errorf("operator \"in\" requires a list value, got %T", c.Value)
		}
		for _, item := range list {
			if compareEqual(val, item) {
				return true, nil
			}
		}
		return false, nil
	case "contains":
		if !present {
			return false, nil
		}
		s, ok := val.(string)
		if !ok {
			return false, fmt.Errorf("operator \"contains\" requires a string field, got %T", val)
		}
		sub, ok := c.Value.(string)
		if !ok {
			return false, fmt.Errorf("operator \"contains\" requires a string value, got %T", c.Value)
		}
		return strings.Contains(s, sub), nil
	default:
		return false, fmt.Errorf("unsupported operator %q", c.Op)
	}
}

// lookupField resolves a dotted path into nested fact fields.
func lookupField(fields map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var current any = fields
	for _, part := range parts {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// compareEqual compares with numeric coercion: YAML condition values decode
// as int while JSON fact values decode as float64. Lists and maps are
// compared element-wise; comparing two interfaces holding slices with ==
// panics, so composite values never reach the == branch.
func compareEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}

	switch av := a.(type) {
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !compareEqual(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bval, present := bv[k]
			if !present || !compareEqual(v, bval) {
				return false
			}
		}
		return true
	default:
		// Scalar against anything else; mismatched dynamic types are
		// simply unequal.
		return a == b
	}
}

func compareOrdered(a, b any, op string) (bool, error) {
	af, aok := asFloat(a)
	bf, bok := asFloat(b)
	if !aok || !bok {
		return false, fmt.Errorf("operator %q requires numeric operands, got %T and %T", op, a, b)
	}
	switch op {
	case "lt":
		return af < bf, nil
	case "lte":
		return af <= bf, nil
	case "gt":
		return af > bf, nil
	default:
		return af >= bf, nil
	}
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
