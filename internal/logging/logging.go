// Package logging provides structured logging for bolide using zerolog.
// Console output is used when stderr is a terminal, JSON otherwise.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Nop discards all output
var Nop = zerolog.Nop()

// Default returns a logger configured from the environment
func Default() zerolog.Logger {
	var writer io.Writer = os.Stderr

	if isTerminal() && os.Getenv("BOLIDE_LOG_FORMAT") != "json" {
		writer = zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.Kitchen,
			NoColor:    os.Getenv("NO_COLOR") != "",
		}
	}

	return New(writer).Level(envLevel())
}

// New creates a JSON logger writing to w
func New(w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}

	return zerolog.New(w).
		With().
		Timestamp().
		Str("component", "bolide").
		Logger()
}

// NewConsole creates a human-readable logger for examples and tooling
func NewConsole() zerolog.Logger {
	writer := zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.Kitchen,
		NoColor:    os.Getenv("NO_COLOR") != "",
	}

	return New(writer)
}

// ParseLevel maps a level string to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}

// isTerminal checks if stderr is a terminal
func isTerminal() bool {
	if fileInfo, _ := os.Stderr.Stat(); (fileInfo.Mode() & os.ModeCharDevice) != 0 {
		return true
	}
	return false
}

// envLevel returns the log level from the environment
func envLevel() zerolog.Level {
	levelStr := os.Getenv("BOLIDE_LOG_LEVEL")
	if levelStr == "" {
		levelStr = os.Getenv("LOG_LEVEL")
	}
	if levelStr == "" {
		if os.Getenv("DEBUG") != "" {
			return zerolog.DebugLevel
		}
		return zerolog.InfoLevel
	}

	return ParseLevel(levelStr)
}
