// Package logging provides structured logging for Deck Relay.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across both binaries.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log the bridge key in full; log a prefix at most.
package logging
