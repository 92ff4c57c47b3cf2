package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents different logging levels.
// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Logger defines the minimal logging interface used across the runtime.
// This allows users to provide their own logger implementation or use the built-in adapters.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// Debug logs a debug message.
func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(msg, args...) }

// Info logs an informational message.
func (s *SlogAdapter) Info(msg string, args ...any) { s.Logger.Info(msg, args...) }

// Warn logs a warning message.
func (s *SlogAdapter) Warn(msg string, args ...any) { s.Logger.Warn(msg, args...) }

// Error logs an error message.
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(msg, args...) }

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// StructuredLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. It should be cheap to copy via With* methods.
type StructuredLogger struct {
	logger     *slog.Logger
	level      LogLevel
	context    map[string]interface{}
	component  string
	agent      string
	exchangeID string
}

// LoggerConfig configures construction of an StructuredLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // json or text
	Output      io.Writer
	AddSource   bool
	Component   string
	Agent       string
	CustomAttrs map[string]interface{}
}

// DefaultLoggerConfig returns a baseline JSON info level configuration.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stdout, AddSource: true, CustomAttrs: map[string]interface{}{}}
}

// NewLogger builds an StructuredLogger from a config (or defaults if nil).
func NewLogger(cfg *LoggerConfig) *StructuredLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	opts := &slog.HandlerOptions{Level: slogLevel(cfg.Level), AddSource: cfg.AddSource}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(cfg.Output, opts)
	} else {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	}
	attrs := make(map[string]interface{}, len(cfg.CustomAttrs))
	for k, v := range cfg.CustomAttrs {
		attrs[k] = v
	}
	return &StructuredLogger{logger: slog.New(handler), level: cfg.Level, context: attrs, component: cfg.Component, agent: cfg.Agent}
}

func slogLevel(l LogLevel) slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelInfo:
		return slog.LevelInfo
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (l *StructuredLogger) clone() *StructuredLogger {
	nl := *l
	nl.context = map[string]interface{}{}
	for k, v := range l.context {
		nl.context[k] = v
	}
	return &nl
}

// WithComponent sets the logical component (agent, mailbox, tool, etc.).
func (l *StructuredLogger) WithComponent(c string) *StructuredLogger {
	nl := l.clone()
	nl.component = c
	return nl
}

// WithExchange attaches the agent name and the id of a single transport call.
func (l *StructuredLogger) WithExchange(agent, exchangeID string) *StructuredLogger {
	nl := l.clone()
	nl.agent = agent
	nl.exchangeID = exchangeID
	return nl
}

func (l *StructuredLogger) buildAttrs() []slog.Attr {
	attrs := make([]slog.Attr, 0, len(l.context)+5)
	if l.component != "" {
		attrs = append(attrs, slog.String("component", l.component))
	}
	if l.agent != "" {
		attrs = append(attrs, slog.String("agent", l.agent))
	}
	if l.exchangeID != "" {
		attrs = append(attrs, slog.String("exchange_id", l.exchangeID))
	}
	attrs = append(attrs, slog.Time("timestamp", time.Now()))
	for k, v := range l.context {
		attrs = append(attrs, slog.Any(k, v))
	}
	return attrs
}

func (l *StructuredLogger) log(level slog.Level, allowed bool, msg string, args ...interface{}) {
	if !allowed {
		return
	}
	attrs := l.buildAttrs()
	r := slog.NewRecord(time.Now(), level, msg, 0)
	r.AddAttrs(attrs...)
	r.Add(args...)
	_ = l.logger.Handler().Handle(context.Background(), r)
}

// Debug logs at debug level.
func (l *StructuredLogger) Debug(msg string, args ...interface{}) {
	l.log(slog.LevelDebug, l.level <= LogLevelDebug, msg, args...)
}

// Info logs at info level.
func (l *StructuredLogger) Info(msg string, args ...interface{}) {
	l.log(slog.LevelInfo, l.level <= LogLevelInfo, msg, args...)
}

// Warn logs at warn level.
func (l *StructuredLogger) Warn(msg string, args ...interface{}) {
	l.log(slog.LevelWarn, l.level <= LogLevelWarn, msg, args...)
}

// Error logs at error level.
func (l *StructuredLogger) Error(msg string, args ...interface{}) {
	l.log(slog.LevelError, l.level <= LogLevelError, msg, args...)
}

// LogToolCall records execution details for a tool invocation.
func (l *StructuredLogger) LogToolCall(tool string, dur time.Duration, success bool, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("tool_name", tool), slog.Duration("duration", dur), slog.Bool("success", success))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Tool execution completed"
	if !success {
		level = slog.LevelError
		msg = "Tool execution failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogProviderCall records a completed transport call: provider, model,
// number of attempts, latency and outcome.
func (l *StructuredLogger) LogProviderCall(provider, model string, attempts int, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("provider", provider), slog.String("model", model), slog.Int("attempts", attempts), slog.Duration("duration", dur), slog.Bool("success", err == nil))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Provider call completed"
	if err != nil {
		level = slog.LevelError
		msg = "Provider call failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// LogTurn records an agent turn including the number of tool cycles it ran.
func (l *StructuredLogger) LogTurn(agent string, cycles int, dur time.Duration, err error) {
	attrs := l.buildAttrs()
	attrs = append(attrs, slog.String("agent_name", agent), slog.Int("tool_cycles", cycles), slog.Duration("duration", dur), slog.Bool("success", err == nil))
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	level := slog.LevelInfo
	msg := "Turn completed"
	if err != nil {
		level = slog.LevelError
		msg = "Turn failed"
	}
	l.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// ParseLevel maps a configuration string (debug, info, warn, error) to a
// LogLevel, defaulting to info.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// NewSlogLogger creates a new StructuredLogger with the specified configuration.
func NewSlogLogger(level LogLevel, format string, addSource bool) *StructuredLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// fieldLogger prefixes every entry with a fixed set of key/value pairs.
type fieldLogger struct {
	next   Logger
	fields []any
}

// With returns a Logger that adds the key/value pairs in args to every entry.
func With(l Logger, args ...any) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	if _, ok := l.(NoOpLogger); ok {
		return l
	}
	if fl, ok := l.(*fieldLogger); ok {
		return &fieldLogger{next: fl.next, fields: append(append([]any(nil), fl.fields...), args...)}
	}
	return &fieldLogger{next: l, fields: args}
}

func (f *fieldLogger) merge(args []any) []any {
	return append(append(make([]any, 0, len(f.fields)+len(args)), f.fields...), args...)
}

// Debug logs a debug message.
func (f *fieldLogger) Debug(msg string, args ...any) { f.next.Debug(msg, f.merge(args)...) }

// Info logs an informational message.
func (f *fieldLogger) Info(msg string, args ...any) { f.next.Info(msg, f.merge(args)...) }

// Warn logs a warning message.
func (f *fieldLogger) Warn(msg string, args ...any) { f.next.Warn(msg, f.merge(args)...) }

// Error logs an error message.
func (f *fieldLogger) Error(msg string, args ...any) { f.next.Error(msg, f.merge(args)...) }

// CallRecorder is implemented by loggers with domain helpers, such as
// StructuredLogger.
type CallRecorder interface {
	LogProviderCall(provider, model string, attempts int, dur time.Duration, err error)
	LogToolCall(tool string, dur time.Duration, success bool, err error)
	LogTurn(agent string, cycles int, dur time.Duration, err error)
}

func recorder(l Logger) (CallRecorder, bool) {
	if f, ok := l.(*fieldLogger); ok {
		l = f.next
	}
	r, ok := l.(CallRecorder)
	return r, ok
}

// RecordProviderCall forwards to l's LogProviderCall. It is a no-op for
// loggers without domain helpers.
func RecordProviderCall(l Logger, provider, model string, attempts int, dur time.Duration, err error) {
	if r, ok := recorder(l); ok {
		r.LogProviderCall(provider, model, attempts, dur, err)
	}
}

// RecordToolCall forwards to l's LogToolCall when available.
func RecordToolCall(l Logger, tool string, dur time.Duration, err error) {
	if r, ok := recorder(l); ok {
		r.LogToolCall(tool, dur, err == nil, err)
	}
}

// RecordTurn forwards to l's LogTurn when available.
func RecordTurn(l Logger, agent string, cycles int, dur time.Duration, err error) {
	if r, ok := recorder(l); ok {
		r.LogTurn(agent, cycles, dur, err)
	}
}

// scoped applies fn to the StructuredLogger behind l, keeping any fields
// added with With.
func scoped(l Logger, fn func(*StructuredLogger) *StructuredLogger) (Logger, bool) {
	switch v := l.(type) {
	case *StructuredLogger:
		return fn(v), true
	case *fieldLogger:
		if sl, ok := v.next.(*StructuredLogger); ok {
			return &fieldLogger{next: fn(sl), fields: v.fields}, true
		}
	}
	return l, false
}

// ForComponent tags every entry of l with a subsystem name.
func ForComponent(l Logger, component string) Logger {
	if nl, ok := scoped(l, func(s *StructuredLogger) *StructuredLogger { return s.WithComponent(component) }); ok {
		return nl
	}
	return With(l, "component", component)
}

// ForExchange tags every entry of l with the agent and the id of one
// transport call. An empty agent name is omitted.
func ForExchange(l Logger, agent, exchangeID string) Logger {
	if nl, ok := scoped(l, func(s *StructuredLogger) *StructuredLogger {
		if agent == "" {
			agent = s.agent
		}
		return s.WithExchange(agent, exchangeID)
	}); ok {
		return nl
	}
	if agent == "" {
		return With(l, "exchange_id", exchangeID)
	}
	return With(l, "agent", agent, "exchange_id", exchangeID)
}
