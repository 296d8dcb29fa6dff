// Package logging provides structured logging for the composition layer.
package logging

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type contextKey string

const (
	// TraceIDKey is the context key for trace IDs.
	TraceIDKey contextKey = "trace_id"
	// RouteKey is the context key for the matched route template.
	RouteKey contextKey = "route"
)

// Logger wraps logrus with component and request-scoped fields.
type Logger struct {
	*logrus.Logger
	component string
}

// New creates a logger for a component.
// level is a logrus level name ("debug", "info", ...); format is "json" or "text".
func New(component, level, format string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)

	parsed, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		parsed = logrus.InfoLevel
	}
	l.SetLevel(parsed)

	if strings.EqualFold(strings.TrimSpace(format), "text") {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339Nano,
		})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
		})
	}

	return &Logger{Logger: l, component: component}
}

// NewDefault creates an info-level JSON logger.
func NewDefault(component string) *Logger {
	return New(component, "info", "json")
}

// NewDiscard creates a logger that drops everything. Used in tests.
func NewDiscard(component string) *Logger {
	l := New(component, "panic", "json")
	l.SetOutput(io.Discard)
	return l
}

// Component returns the component name attached to every entry.
func (l *Logger) Component() string {
	return l.component
}

// Named returns a logger sharing output and level under another component name.
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger, component: component}
}

// WithContext returns an entry carrying the component and any trace/route found in ctx.
func (l *Logger) WithContext(ctx context.Context) *logrus.Entry {
	entry := l.Logger.WithField("component", l.component)
	if ctx == nil {
		return entry
	}
	if traceID := GetTraceID(ctx); traceID != "" {
		entry = entry.WithField("trace_id", traceID)
	}
	if route, ok := ctx.Value(RouteKey).(string); ok && route != "" {
		entry = entry.WithField("route", route)
	}
	return entry
}

// LogRequest logs a completed HTTP request.
func (l *Logger) LogRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	entry := l.WithContext(ctx).WithFields(logrus.Fields{
		"method":      method,
		"path":        path,
		"status":      statusCode,
		"duration_ms": duration.Milliseconds(),
	})

	switch {
	case statusCode >= 500:
		entry.Error("HTTP request failed")
	case statusCode >= 400:
		entry.Warn("HTTP request client error")
	default:
		entry.Info("HTTP request")
	}
}

// LogSecurityEvent logs an event that affects request admission, such as rate limiting.
func (l *Logger) LogSecurityEvent(ctx context.Context, event string, fields map[string]interface{}) {
	l.WithContext(ctx).WithField("event", event).WithFields(fields).Warn("security event")
}

// NewTraceID generates a new trace ID.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTraceID adds a trace ID to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID stored in ctx, or "".
func GetTraceID(ctx context.Context) string {
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithRoute adds the matched route template to the context.
func WithRoute(ctx context.Context, route string) context.Context {
	return context.WithValue(ctx, RouteKey, route)
}
