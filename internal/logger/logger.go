// Package logger provides zerolog constructors shared by the certmill
// packages. Loggers carry a component field so pipeline stages can be
// told apart in one interleaved stream.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// New creates a structured zerolog.Logger writing to stderr.
func New(component string) zerolog.Logger {
	return zerolog.New(os.Stderr).With().
		Timestamp().
		Str("component", component).
		Logger()
}

// NewPretty creates a zerolog.Logger which emits human-readable log
// messages, for interactive CLI runs.
func NewPretty(component string) zerolog.Logger {
	return New(component).Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// NewWithOutput creates a structured logger writing to w. Tests use it
// to capture output.
func NewWithOutput(component string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).With().
		Timestamp().
		Str("component", component).
		Logger()
}

// SetLogLevel sets the global logging level.
func SetLogLevel(verbosity string) error {
	switch strings.ToLower(verbosity) {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)

	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)

	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)

	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)

	case "disabled":
		zerolog.SetGlobalLevel(zerolog.Disabled)

	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)

	default:
		allowedLevels := []string{"trace", "debug", "info", "warn", "error", "disabled"}
		return fmt.Errorf("invalid log level %q, expected one of %v", verbosity, allowedLevels)
	}
	return nil
}
