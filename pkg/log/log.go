// Package log configures the process-wide slog setup shared by the flowkit
// binaries.
package log

import (
	"log/slog"
	"os"
)

// Setup installs a text handler on stderr at the given level and returns the
// root logger. The returned logger is what binaries hand to constructors; the
// slog default is set too so stray library logging lands in the same place.
func Setup(logLevel string) *slog.Logger {
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	slog.SetDefault(logger)

	return logger
}

// WithModule returns a logger scoped to one component of the process.
func WithModule(logger *slog.Logger, module string) *slog.Logger {
	return logger.With("module", module)
}
