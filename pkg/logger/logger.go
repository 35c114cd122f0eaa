// Package logger installs the process-wide slog logger and threads request
// IDs through contexts. Records logged with a *Context method pick up the
// request ID automatically.
package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type requestIDKey struct{}

// Setup logs to stdout.
func Setup(level string, format string) {
	SetupWriter(os.Stdout, level, format)
}

// SetupWriter installs the default logger on w; format "json" selects the
// JSON handler, anything else text. The CLI passes stderr here so command
// output on stdout stays machine-readable.
func SetupWriter(w io.Writer, level string, format string) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var base slog.Handler = slog.NewTextHandler(w, opts)
	if strings.EqualFold(format, "json") {
		base = slog.NewJSONHandler(w, opts)
	}
	slog.SetDefault(slog.New(contextHandler{base}))
}

// contextHandler adds request_id from the record's context.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if id := RequestID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestID returns the ID stored by WithRequestID, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// FromContext is the default logger with ctx's request ID bound, for code
// that logs without passing ctx along.
func FromContext(ctx context.Context) *slog.Logger {
	if id := RequestID(ctx); id != "" {
		return slog.Default().With("request_id", id)
	}
	return slog.Default()
}

// ParseLevel accepts debug, warn (or warning) and error; anything else is
// info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
