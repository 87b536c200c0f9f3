package cliutil

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
)

// SetupLogging wires slog.Default exactly as the teacher's
// cmd/datacollector/main.go does: a text handler on stderr, debug level
// opt-in, and AddSource only in debug mode with stderr attached to a real
// terminal (piped/redirected output skips the extra noise).
func SetupLogging(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: debug && isatty.IsTerminal(os.Stderr.Fd()),
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, opts)))
}
