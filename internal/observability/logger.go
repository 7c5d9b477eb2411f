package observability

import (
	"log/slog"
	"os"
	"strings"
)

// basic global logger, JSON to stderr so tool output on stdout stays clean.
var logger = slog.New(slog.NewJSONHandler(os.Stderr, nil))

func Logger() *slog.Logger {
	return logger
}

// WithComponent returns a logger tagged with the owning component name.
func WithComponent(name string) *slog.Logger {
	return logger.With("component", name)
}

// Configure rebuilds the global logger at the given level ("debug", "info",
// "warn", "error"). Unknown values fall back to info.
func Configure(level string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
