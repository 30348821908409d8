package utils

import (
	"log/slog"
	"os"
	"strings"
)

// NewLogger returns a slog.Logger tagged with the pipeline component name and
// configured for the desired verbosity and output format.
func NewLogger(level string, json bool) *slog.Logger {
	handlerLevel := slog.LevelInfo
	switch strings.ToLower(level) {
	case "debug":
		handlerLevel = slog.LevelDebug
	case "warn":
		handlerLevel = slog.LevelWarn
	case "error":
		handlerLevel = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: handlerLevel}
	var handler slog.Handler
	if json {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler).With(slog.String("service", "pipeline-engine"))
}
