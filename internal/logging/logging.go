// Package logging configures the process-wide slog default.
package logging

import (
	"log/slog"
	"os"
)

// Setup installs a text handler on stderr. Debug mode lowers the level and
// adds source locations.
func Setup(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level:     level,
		AddSource: debug,
	})
	slog.SetDefault(slog.New(handler))
}
