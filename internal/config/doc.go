// Package config handles configuration loading and merging for tally.
//
// # Configuration Precedence
//
// Configuration values are resolved in the following order (highest to lowest priority):
//
//  1. CLI flags (-run-name, -theme, -log-level, -junit, -no-junit, -collector)
//  2. Environment variables (TALLY_RUN_NAME, TALLY_OUTPUT_DIR, TALLY_LOG_LEVEL,
//     TALLY_THEME, TALLY_NO_COLOR, NO_COLOR)
//  3. YAML config file (.tally.yaml in the working directory or
//     ~/.config/tally/.tally.yaml)
//  4. Hardcoded defaults
//
// The config file is checked against an embedded JSON schema before it is
// decoded, so unknown keys and unknown notifier types are rejected.
//
// # Notifiers
//
// Notifiers name the report sinks of a run:
//
//   - junit: writes a JUnit-style XML report to path (relative paths are
//     placed under output_dir)
//   - subtestresultcollector: prints sub-test outcomes on completion
//
// With no notifiers configured, a single junit notifier with the default
// filename is used.
package config
