package logging

import (
	"os"

	"github.com/rs/zerolog"
)

// NewLogger creates the root structured logger. Components derive their own
// loggers from it with a "component" field.
func NewLogger(service, logLevel string) zerolog.Logger {
	ctx := zerolog.New(os.Stdout).With().Timestamp()
	if service != "" {
		ctx = ctx.Str("service", service)
	}
	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
