// Package logtrace provides logging utilities for the catalog client.
// It integrates with zerolog for structured logging.
package logtrace

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the global logger with Unix timestamp format.
// Configures zerolog to output to stderr with timestamps.
func InitLogger() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// ComponentLogger returns a logger tagged with the given component name.
// Components use this to attribute log lines to a specific subsystem
// (transport, cache, poller).
func ComponentLogger(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
