// Package observability carries scan and request identifiers through a
// context so log lines emitted deep in a call chain are attributed.
package observability

import (
	"context"
	"log/slog"

	"git.home.luguber.info/inful/linkscan/internal/logfields"
)

// LogContext holds structured logging context information.
type LogContext struct {
	ScanID     int64
	DocumentID int64
	SourceURL  string
	RequestID  string
	Component  string
}

type logContextKeyType string

const logContextKey logContextKeyType = "log-context"

// WithScanID adds a scan id to the context.
func WithScanID(ctx context.Context, id int64) context.Context {
	lc := extractLogContext(ctx)
	lc.ScanID = id
	return context.WithValue(ctx, logContextKey, lc)
}

// WithDocument adds the document being scanned to the context.
func WithDocument(ctx context.Context, id int64, sourceURL string) context.Context {
	lc := extractLogContext(ctx)
	lc.DocumentID = id
	lc.SourceURL = sourceURL
	return context.WithValue(ctx, logContextKey, lc)
}

// WithRequestID adds an HTTP request id to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	lc := extractLogContext(ctx)
	lc.RequestID = requestID
	return context.WithValue(ctx, logContextKey, lc)
}

// WithComponent names the subsystem logging.
func WithComponent(ctx context.Context, component string) context.Context {
	lc := extractLogContext(ctx)
	lc.Component = component
	return context.WithValue(ctx, logContextKey, lc)
}

func extractLogContext(ctx context.Context) LogContext {
	if lc, ok := ctx.Value(logContextKey).(LogContext); ok {
		return lc
	}
	return LogContext{}
}

// GetContext returns the structured log context from ctx.
func GetContext(ctx context.Context) LogContext {
	return extractLogContext(ctx)
}

// Attrs returns the context's fields as slog attributes, unset fields omitted.
func Attrs(ctx context.Context) []slog.Attr {
	lc := extractLogContext(ctx)
	var attrs []slog.Attr
	if lc.Component != "" {
		attrs = append(attrs, logfields.Component(lc.Component))
	}
	if lc.ScanID != 0 {
		attrs = append(attrs, logfields.ScanID(lc.ScanID))
	}
	if lc.DocumentID != 0 {
		attrs = append(attrs, logfields.DocumentID(lc.DocumentID))
	}
	if lc.SourceURL != "" {
		attrs = append(attrs, logfields.SourceURL(lc.SourceURL))
	}
	if lc.RequestID != "" {
		attrs = append(attrs, logfields.RequestID(lc.RequestID))
	}
	return attrs
}

func logContext(ctx context.Context, level slog.Level, msg string, attrs []slog.Attr) {
	slog.LogAttrs(ctx, level, msg, append(Attrs(ctx), attrs...)...)
}

// InfoContext logs an info message with context information.
func InfoContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logContext(ctx, slog.LevelInfo, msg, attrs)
}

// WarnContext logs a warning message with context information.
func WarnContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logContext(ctx, slog.LevelWarn, msg, attrs)
}

// ErrorContext logs an error message with context information.
func ErrorContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logContext(ctx, slog.LevelError, msg, attrs)
}

// DebugContext logs a debug message with context information.
func DebugContext(ctx context.Context, msg string, attrs ...slog.Attr) {
	logContext(ctx, slog.LevelDebug, msg, attrs)
}
