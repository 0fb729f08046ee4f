package logging

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/edvin/renewd/internal/config"
)

// NewLogger creates a structured zerolog.Logger for the given config. Callers
// attach per-renewal context fields with .With() rather than using a
// package-level global logger.
func NewLogger(cfg *config.Config) zerolog.Logger {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}

	return logger.Level(level)
}
