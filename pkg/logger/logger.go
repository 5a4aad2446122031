package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a component-scoped logger. Output is JSON unless
// APP_ENV=dev, in which case a console writer is used. LOG_LEVEL
// controls verbosity (default info).
func New(component string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(os.Getenv("LOG_LEVEL")))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var l zerolog.Logger
	if strings.ToLower(os.Getenv("APP_ENV")) == "dev" {
		writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
		l = zerolog.New(writer)
	} else {
		l = zerolog.New(os.Stdout)
	}
	return l.Level(level).With().Timestamp().Str("component", component).Logger()
}
