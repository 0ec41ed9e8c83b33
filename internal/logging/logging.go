// Package logging builds the service logger.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/corebank/ledger/internal/config"
)

// New constructs the root logger from configuration. Unknown levels fall
// back to info.
func New(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	out := zerolog.New(os.Stdout)
	if cfg.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}

	return out.Level(level).With().
		Timestamp().
		Str("service", "ledger").
		Logger()
}
