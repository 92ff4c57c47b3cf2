// Package logging provides a minimal logging interface and adapters.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that agents, the mailbox and the tool registry use for observability. This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - ZapAdapter wrapping a zap logger
//   - StructuredLogger with component/exchange context and provider/tool/turn helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mb := mailbox.New(provider, mailbox.WithLogger(logger))
//
// Arguments after the message are slog-style key/value pairs.
package logging
