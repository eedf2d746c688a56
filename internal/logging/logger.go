// Package logging provides structured logging for go-analysis-harness.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options control logger construction.
type Options struct {
	Format  string    // "json" or "text"
	Level   string    // "debug", "info", "warn", or "error"
	Verbose bool      // promotes the level to debug
	Writer  io.Writer // defaults to os.Stderr
}

// New creates a structured logger from the given options.
func New(opts Options) *slog.Logger {
	logLevel := parseLevel(opts.Level)
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{
		Level: logLevel,
		// Add source location for debug level
		AddSource: logLevel == slog.LevelDebug,
	}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		handler = slog.NewJSONHandler(w, hopts)
	case "text":
		handler = slog.NewTextHandler(w, hopts)
	default:
		handler = slog.NewTextHandler(w, hopts)
	}

	return slog.New(handler)
}

// parseLevel converts a string level to slog.Level.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// SetDefault sets the default logger for the slog package.
func SetDefault(logger *slog.Logger) {
	slog.SetDefault(logger)
}
