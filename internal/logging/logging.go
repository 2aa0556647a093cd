// Package logging builds the application's slog logger. A context handler adds
// the capture session ID and the scan source carried on the context to every
// record logged with a *Context method.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

type contextKey int

const logDataKey contextKey = iota

// LogData is the per-context data added to log records.
type LogData struct {
	SessionID string
	Source    string
}

// Config selects the handler.
type Config struct {
	// Level is debug, info, warn or error. Empty means info.
	Level string

	// Format is json or text. Empty means text.
	Format string
}

// ParseLevel converts a level name into a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", name)
	}
}

// New creates a logger writing to w. An unknown level or format is an error.
func New(w io.Writer, cfg Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q (want text or json)", cfg.Format)
	}

	return slog.New(NewContextHandler(h)), nil
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// ContextHandler wraps a handler and adds LogData from the context.
type ContextHandler struct {
	handler slog.Handler
}

// NewContextHandler wraps h.
func NewContextHandler(h slog.Handler) *ContextHandler {
	return &ContextHandler{handler: h}
}

func (h *ContextHandler) Enabled(ctx context.Context, lvl slog.Level) bool {
	return h.handler.Enabled(ctx, lvl)
}

func (h *ContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if ld, ok := ctx.Value(logDataKey).(LogData); ok {
		if ld.SessionID != "" {
			rec.AddAttrs(slog.String("session_id", ld.SessionID))
		}
		if ld.Source != "" {
			rec.AddAttrs(slog.String("source", ld.Source))
		}
	}
	return h.handler.Handle(ctx, rec)
}

func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ContextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{handler: h.handler.WithGroup(name)}
}

// WithSessionID returns a context whose log records carry session_id.
func WithSessionID(ctx context.Context, id string) context.Context {
	ld, _ := ctx.Value(logDataKey).(LogData)
	ld.SessionID = id
	return context.WithValue(ctx, logDataKey, ld)
}

// WithSource returns a context whose log records carry source, such as
// "camera", "http" or "cli".
func WithSource(ctx context.Context, source string) context.Context {
	ld, _ := ctx.Value(logDataKey).(LogData)
	ld.Source = source
	return context.WithValue(ctx, logDataKey, ld)
}

// FromContext returns the LogData carried on ctx.
func FromContext(ctx context.Context) LogData {
	ld, _ := ctx.Value(logDataKey).(LogData)
	return ld
}
