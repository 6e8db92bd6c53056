package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Setup builds the root logger. format is "pretty" for console output and
// anything else for JSON lines; an unknown level falls back to info.
func Setup(level, format string) zerolog.Logger {
	return New(os.Stdout, level, format)
}

func New(out io.Writer, level, format string) zerolog.Logger {
	if format == "pretty" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.TimeFieldFormat = time.RFC3339

	return zerolog.New(out).
		Level(lvl).
		With().
		Timestamp().
		Str("service", "live-arena").
		Logger()
}
