// Package logger builds the zerolog logger shared by the server, the
// scheduler and the CLI.
package logger

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config holds logger configuration
type Config struct {
	Level  string // debug, info, warn, error
	Pretty bool   // Enable pretty console output
	Output io.Writer
}

// New creates a new structured logger
func New(cfg Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.Level)))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: "15:04:05",
		}
	}

	return zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with the component name.
func Component(l zerolog.Logger, name string) zerolog.Logger {
	return l.With().Str("component", name).Logger()
}

// SetGlobalLogger sets the package-level logger
func SetGlobalLogger(l zerolog.Logger) {
	log.Logger = l
}
