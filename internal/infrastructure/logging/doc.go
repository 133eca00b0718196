// Package logging provides structured logging for the video-stream bridge.
//
// This package wraps Go's standard log/slog package so every component logs
// with the same format and default fields.
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
//	  output: "stdout"   # stdout, stderr, discard
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("listening", "address", cfg.Server.ListenAddress)
//
// # Security
//
// Never log device PINs or API keys. Request logs record the path only,
// never the query string.
package logging
