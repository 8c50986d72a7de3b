package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Init configures the global console logger on stderr
func Init(verbose bool) zerolog.Logger {
	return InitWriter(os.Stderr, verbose)
}

// InitWriter configures the global logger to write human readable lines to w
func InitWriter(w io.Writer, verbose bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)

	output := zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: "15:04:05",
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return log.Logger
}

// WithComponent creates a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return log.Logger.With().Str("component", component).Logger()
}
