// Package logger wraps log/slog with the event helpers used across binaries.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type Logger struct {
	*slog.Logger
}

// New logs to stdout: text at debug level in development, JSON at info level
// everywhere else.
func New(env string) *Logger {
	return NewWithWriter(env, os.Stdout)
}

func NewWithWriter(env string, w io.Writer) *Logger {
	if strings.EqualFold(env, "development") {
		return &Logger{slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))}
	}
	return &Logger{slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))}
}

// Discard drops every record.
func Discard() *Logger {
	return NewWithWriter("test", io.Discard)
}

func (l *Logger) HTTPRequest(method, route string, status int, latencyMs float64, clientIP string) {
	level := slog.LevelInfo
	if status >= 500 {
		level = slog.LevelError
	}
	l.Log(context.Background(), level, "http_request",
		slog.String("method", method),
		slog.String("route", route),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// ApprovalEvent records a change to an approval's validity window.
func (l *Logger) ApprovalEvent(event, number string, attrs ...any) {
	args := append([]any{slog.String("event", event), slog.String("number", number)}, attrs...)
	l.Info("approval_event", args...)
}

// ImportRowRejected records a row skipped by a bulk import.
func (l *Logger) ImportRowRejected(source string, row int, reason string) {
	l.Warn("import_row_rejected",
		slog.String("source", source),
		slog.Int("row", row),
		slog.String("reason", reason),
	)
}

func (l *Logger) DatabaseError(operation string, err error, attrs ...any) {
	args := append([]any{slog.String("operation", operation), slog.String("error", err.Error())}, attrs...)
	l.Error("database_error", args...)
}

func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
