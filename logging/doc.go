// Package logging provides a minimal logging interface and adapters for the
// outreach system.
//
// The Logger interface defines the standard logging methods (Debug, Info,
// Warn, Error) that the dispatcher, agents and stores use for observability.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - OutreachLogger with contextual campaign/provider helpers
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	d := dispatch.New(cat, st, dispatch.WithLogger(logger))
//
// The design intentionally keeps the interface minimal to avoid vendor lock-in
// while supporting structured logging where available.
package logging
