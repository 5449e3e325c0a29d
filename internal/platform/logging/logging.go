// Package logging builds the zerolog logger shared by every service.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.elastic.co/ecszerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
	FormatECS     = "ecs"
)

// New returns a timestamped logger writing to stdout in format.
func New(format string) zerolog.Logger {
	return NewWithWriter(os.Stdout, format)
}

func NewWithWriter(w io.Writer, format string) zerolog.Logger {
	switch format {
	case FormatConsole:
		return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	case FormatECS:
		return ecszerolog.New(w).With().Timestamp().Logger()
	default:
		return zerolog.New(w).With().Timestamp().Logger()
	}
}

// ForService tags every entry of logger with the service name.
func ForService(logger zerolog.Logger, service string) zerolog.Logger {
	return logger.With().Str("service", service).Logger()
}
