// Package logging configures the global zerolog logger and emits the
// one-shot run configuration event.
package logging

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LevelEnv names the environment variable that selects the log level.
const LevelEnv = "SESSION_CHECK_LOG_LEVEL"

// Init initializes the global logger with configuration from environment variables.
// SESSION_CHECK_LOG_LEVEL controls the log level: debug, info, warn, error (default: info)
func Init() {
	zerolog.SetGlobalLevel(ParseLevel(os.Getenv(LevelEnv)))
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

// ParseLevel maps a level name to a zerolog level. Unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
