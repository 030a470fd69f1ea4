// Package logging builds the zerolog logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger tagged with the service name. format "console" writes
// human readable lines for terminal use; anything else writes JSON.
func New(service string, level string, format string) zerolog.Logger {
	return NewWithWriter(os.Stderr, service, level, format)
}

func NewWithWriter(w io.Writer, service string, level string, format string) zerolog.Logger {
	if strings.EqualFold(strings.TrimSpace(format), "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).
		Level(ParseLevel(level)).
		With().
		Str("service", service).
		Timestamp().
		Logger()
}

// ParseLevel falls back to info for blank or unknown levels.
func ParseLevel(level string) zerolog.Level {
	parsed, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || parsed == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return parsed
}
