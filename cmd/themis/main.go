// Mercator Themis is a business rule execution runtime.
//
// It executes versioned rule sets against submitted facts through a pool of
// reusable evaluation sessions, with result caching, hot-swap of rule-set
// versions, execution-time accounting, and a persistent audit trail.
//
// Usage:
//
//	# Start the runtime with default configuration
//	themis run
//
//	# Start with custom configuration file
//	themis run --config /path/to/config.yaml
//
//	# Execute a single fact against the loaded rule set
//	themis execute --fact fact.json
//
//	# Validate a configuration file
//	themis validate
//
//	# Show version information
//	themis version
//
// For complete documentation, see: https://github.com/mercator-hq/themis
package main

func main() {
	Execute()
}
