package logging

import (
	"io"
	"log/slog"
	"os"

	"gitlab.com/ucmsv2/idbroker/pkg/env"
)

// NewHandler returns a text handler outside prod and a JSON handler in prod.
func NewHandler(w io.Writer, mode env.Mode) slog.Handler {
	opts := &slog.HandlerOptions{Level: mode.SlogLevel()}
	if mode == env.Prod {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// Setup installs the process wide default logger writing to stdout.
func Setup(mode env.Mode) *slog.Logger {
	logger := slog.New(NewHandler(os.Stdout, mode))
	slog.SetDefault(logger)
	return logger
}
