package simfs

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a logger with the given handler. If handler is nil, it
// writes text to stderr at Info level.
func NewLogger(handler slog.Handler) *slog.Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return slog.New(handler)
}

// NewTextLogger creates a logger that writes human-readable text to `w`.
func NewTextLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a logger that discards everything.
func NoopLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{
		Level: slog.Level(1000),
	}))
}

// ParseLogLevel converts a level name ("debug", "info", "warn", "error") into an
// [slog.Level]. Unrecognized names give Info.
func ParseLogLevel(name string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(name))); err != nil {
		return slog.LevelInfo
	}
	return level
}
