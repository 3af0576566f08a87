// Package logging holds the structured logger shared by the server components.
package logging

import (
	"io"
	"log/slog"
	"strings"

	"github.com/pkg/errors"
)

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
// Applications can provide their own implementation or use the default slog logger.
type Logger interface {
	// Debug logs a debug-level message with optional key-value pairs.
	Debug(msg string, args ...any)
	// Info logs an info-level message with optional key-value pairs.
	Info(msg string, args ...any)
	// Warn logs a warning-level message with optional key-value pairs.
	Warn(msg string, args ...any)
	// Error logs an error-level message with optional key-value pairs.
	Error(msg string, args ...any)
}

// Default returns the default slog logger from the standard library.
func Default() Logger {
	return slog.Default()
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel parses a level name. Unknown names fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a slog logger writing to w in the given format ("text" or "json").
func New(w io.Writer, level, format string) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, errors.Errorf("unknown log format %q", format)
	}
	return slog.New(h), nil
}
