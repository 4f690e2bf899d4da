package node

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"
)

// LogPublisher ships encoded log entries to a remote subject.
// natsclient.Client satisfies it.
type LogPublisher interface {
	Publish(ctx context.Context, subject string, data []byte) error
}

// LogEntry is the JSON document published for each remote log line.
type LogEntry struct {
	Timestamp string `json:"timestamp"` // RFC3339Nano
	Level     string `json:"level"`
	Node      string `json:"node"`
	Flow      string `json:"flow"`
	Message   string `json:"message"`
	Error     string `json:"error,omitempty"`
}

// publishTimeout bounds a single remote log publish.
const publishTimeout = time.Second

// Logger is the per-node diagnostics sink. Every line goes to slog with the
// node name under the "component" key; entries at info level and above are
// also published when a LogPublisher is configured.
type Logger struct {
	node      string
	flow      string
	logger    *slog.Logger
	publisher LogPublisher
}

// NewLogger creates a node logger. publisher may be nil.
func NewLogger(node, flow string, logger *slog.Logger, publisher LogPublisher) *Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Logger{
		node:      node,
		flow:      flow,
		logger:    logger.With("component", node),
		publisher: publisher,
	}
}

// Subject returns the subject remote entries are published to.
func (l *Logger) Subject() string {
	flow := l.flow
	if flow == "" {
		flow = "default"
	}
	return fmt.Sprintf("logs.%s.%s", flow, l.node)
}

// Slog returns the underlying logger, already tagged with the node name.
func (l *Logger) Slog() *slog.Logger {
	return l.logger
}

// Enabled reports whether level would be logged locally.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.logger.Enabled(context.Background(), level)
}

// Debug logs a debug-level message. Debug entries are never published.
func (l *Logger) Debug(msg string, args ...any) {
	l.logger.Debug(msg, args...)
}

// Info logs an info-level message.
func (l *Logger) Info(msg string, args ...any) {
	l.logger.Info(msg, args...)
	l.publish(slog.LevelInfo, msg, nil)
}

// Warn logs a warning-level message.
func (l *Logger) Warn(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err)
	}
	l.logger.Warn(msg, args...)
	l.publish(slog.LevelWarn, msg, err)
}

// Error logs an error-level message.
func (l *Logger) Error(msg string, err error, args ...any) {
	if err != nil {
		args = append(args, "error", err)
	}
	l.logger.Error(msg, args...)
	l.publish(slog.LevelError, msg, err)
}

func (l *Logger) publish(level slog.Level, msg string, err error) {
	if l.publisher == nil {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Node:      l.node,
		Flow:      l.flow,
		Message:   msg,
	}
	if err != nil {
		entry.Error = err.Error()
	}

	data, marshalErr := json.Marshal(entry)
	if marshalErr != nil {
		l.logger.Error("Failed to marshal log entry", "error", marshalErr)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	subject := l.Subject()
	if pubErr := l.publisher.Publish(ctx, subject, data); pubErr != nil {
		// Local only, publishing the failure would recurse.
		l.logger.Debug("Failed to publish log entry", "error", pubErr, "subject", subject)
	}
}

const levelDebug = slog.LevelDebug
