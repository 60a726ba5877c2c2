// Package logging bootstraps the structured JSON logger shared by every
// vertix process.
package logging

import (
	"log/slog"
	"os"
)

// New creates a JSON slog.Logger tagged with the given service name.
func New(serviceName string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level(os.Getenv("LOG_LEVEL"))}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler).With(slog.String("service", serviceName))
}

func level(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
