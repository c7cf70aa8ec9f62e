// Package logging wires the zerolog logger every component threads in at
// construction, with level filtering driven by AHMA_LOG (the Go
// equivalent of the original's RUST_LOG).
package logging

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New builds the root logger for a process. level comes from AHMA_LOG
// ("trace", "debug", "info", "warn", "error", or empty for the default
// "info"); colored selects a human-readable console writer over stderr
// instead of the default JSON-lines encoding.
func New(colored bool) zerolog.Logger {
	level := parseLevel(os.Getenv("AHMA_LOG"))
	zerolog.SetGlobalLevel(level)

	var out = os.Stderr
	logger := zerolog.New(out).With().Timestamp().Logger()
	if colored {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}).With().Timestamp().Logger()
	}
	return logger
}

func parseLevel(raw string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "":
		return zerolog.InfoLevel
	default:
		return zerolog.InfoLevel
	}
}
