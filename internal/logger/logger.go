// Package logger provides structured logging for devlink using zerolog.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var globalLogger zerolog.Logger

// Config controls logger initialization.
type Config struct {
	Level string
}

func init() {
	globalLogger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init configures the global logger from config.
func Init(config Config) error {
	level := zerolog.InfoLevel

	if config.Level != "" {
		var err error

		level, err = zerolog.ParseLevel(config.Level)
		if err != nil {
			return err
		}
	}

	globalLogger = zerolog.New(os.Stderr).
		Level(level).
		With().
		Timestamp().
		Logger()

	log.Logger = globalLogger

	return nil
}

// Component returns a logger tagged with a component name. The pointer
// return keeps the zerolog level methods callable on the result directly.
func Component(name string) *zerolog.Logger {
	l := globalLogger.With().Str("component", name).Logger()
	return &l
}
