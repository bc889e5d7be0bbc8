package runtime

import (
	"log/slog"
	"os"
)

// NewLogger returns a JSON logger tagged with the service name so the
// schedule, desk and reporting services can be told apart in one stream.
func NewLogger(service string) *slog.Logger {
	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h).With("service", service)
}

