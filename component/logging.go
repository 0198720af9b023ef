package component

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// LogLevel is the severity of a published LogEntry.
type LogLevel string

const (
	LogLevelDebug LogLevel = "DEBUG"
	LogLevelInfo  LogLevel = "INFO"
	LogLevelWarn  LogLevel = "WARN"
	LogLevelError LogLevel = "ERROR"
)

// LogEntry is the structured record published to NATS for a component's
// log events, independent of whatever local slog handler is configured.
type LogEntry struct {
	Timestamp   string   `json:"timestamp"` // RFC3339Nano
	Level       LogLevel `json:"level"`
	ComponentID uint64   `json:"component_id"`
	Message     string   `json:"message"`
	Stack       string   `json:"stack,omitempty"`
}

// Logger wraps a slog.Logger with component identity and, optionally,
// publishes the same events to NATS for live tailing by an operator tool.
// Publishing is best-effort: a failure to reach NATS never blocks or
// fails the caller.
type Logger struct {
	componentID uint64
	nc          *nats.Conn
	logger      *slog.Logger
	enabled     bool
}

// NewLogger returns a Logger for componentID. nc may be nil, in which
// case only local slog output happens.
func NewLogger(componentID uint64, nc *nats.Conn, logger *slog.Logger) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		componentID: componentID,
		nc:          nc,
		logger:      logger,
		enabled:     nc != nil,
	}
}

func (l *Logger) Debug(msg string) { l.DebugContext(context.Background(), msg) }
func (l *Logger) Info(msg string)  { l.InfoContext(context.Background(), msg) }
func (l *Logger) Warn(msg string)  { l.WarnContext(context.Background(), msg) }
func (l *Logger) Error(msg string, err error) { l.ErrorContext(context.Background(), msg, err) }

func (l *Logger) DebugContext(ctx context.Context, msg string) {
	l.logger.Debug(msg, "component_id", l.componentID)
	l.publish(ctx, LogLevelDebug, msg, "")
}

func (l *Logger) InfoContext(ctx context.Context, msg string) {
	l.logger.Info(msg, "component_id", l.componentID)
	l.publish(ctx, LogLevelInfo, msg, "")
}

func (l *Logger) WarnContext(ctx context.Context, msg string) {
	l.logger.Warn(msg, "component_id", l.componentID)
	l.publish(ctx, LogLevelWarn, msg, "")
}

func (l *Logger) ErrorContext(ctx context.Context, msg string, err error) {
	var stack string
	if err != nil {
		stack = fmt.Sprintf("%+v", err)
	}
	l.logger.Error(msg, "component_id", l.componentID, "error", err)
	l.publish(ctx, LogLevelError, msg, stack)
}

func (l *Logger) publish(ctx context.Context, level LogLevel, message, stack string) {
	if !l.enabled {
		return
	}
	select {
	case <-ctx.Done():
		return
	default:
	}

	entry := LogEntry{
		Timestamp:   time.Now().UTC().Format(time.RFC3339Nano),
		Level:       level,
		ComponentID: l.componentID,
		Message:     message,
		Stack:       stack,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		l.logger.Error("marshal log entry", "error", err)
		return
	}

	nc := l.nc
	if nc == nil {
		return
	}

	subject := fmt.Sprintf("maf.logs.%d", l.componentID)
	if err := nc.Publish(subject, data); err != nil {
		l.logger.Error("publish log entry", "error", err, "subject", subject)
	}
}
