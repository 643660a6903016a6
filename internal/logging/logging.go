// Package logging configures the process-wide zerolog logger.
package logging

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

var root = defaultLogger()

func defaultLogger() zerolog.Logger {
	return console().Level(zerolog.InfoLevel)
}

func console() zerolog.Logger {
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	return zerolog.New(w).With().Timestamp().Logger()
}

// Init configures the global logger. Format is "console" or "json"; unknown
// levels fall back to info.
func Init(level, format string) {
	var zl zerolog.Logger
	if strings.EqualFold(format, "json") {
		zl = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		zl = console()
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	root = zl.Level(lvl)
}

// Root returns the global logger.
func Root() zerolog.Logger {
	return root
}

// For returns a child logger tagged with the component name.
func For(component string) zerolog.Logger {
	return root.With().Str("component", component).Logger()
}
