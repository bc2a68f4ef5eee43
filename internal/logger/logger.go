// Package logger configures the process-wide zerolog logger.
//
// The teacher's cmd/dideban/main.go already calls logger.Init(cfg) before
// doing anything else; this package supplies that entrypoint.
package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config is the subset of the application configuration this package needs,
// kept separate from internal/config to avoid an import cycle (config does
// not need to know about zerolog's Logger type).
type Config struct {
	Level  string
	Pretty bool
}

// Init configures the global zerolog logger and log.Logger singleton. It is
// safe to call once at process startup, before any other component logs.
func Init(cfg Config) error {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var writer = os.Stderr
	if cfg.Pretty {
		console := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		log.Logger = zerolog.New(console).With().Timestamp().Caller().Logger()
		return nil
	}

	log.Logger = zerolog.New(writer).With().Timestamp().Logger()
	return nil
}

// WithComponent returns a child of the global logger tagged with a
// component name.
func WithComponent(name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
