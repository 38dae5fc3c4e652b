// Package rules defines the rule-set model and the boundary to the external
// rule-evaluation engine.
//
// # Rule-Set Versions
//
// A RuleSetVersion identifies one immutable compiled rule package. Versions
// are content-addressed: publishing a changed artifact produces a new version
// and never mutates an existing one. The Registry tracks the active version
// per package and notifies subscribers when a version is superseded, which is
// how the session pool and result cache learn about hot-swaps.
//
// # The Engine Boundary
//
// The runtime treats the evaluation engine as opaque behind two narrow
// interfaces:
//
//   - Evaluator creates engine sessions for a version and evaluates
//     normalized facts within a session.
//   - EngineSession is one stateful, reusable evaluation context. Sessions
//     are expensive to create and are pooled by pkg/execution/pool.
//
// The yamlengine subpackage provides a reference Evaluator backed by YAML
// rule artifacts so the runtime is usable and testable without a proprietary
// engine.
//
// # Hot-Swap Watching
//
// Watcher observes a rule-artifact directory with fsnotify and publishes new
// content-addressed versions to a Registry as artifacts change.
package rules
