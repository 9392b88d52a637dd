// Package klog configures kedung's structured logger. It mirrors the
// original's structlog setup: a human-readable console renderer when
// stderr is a terminal, a bare JSON renderer otherwise, with the same five
// named levels (DEBUG, INFO, WARNING, ERROR, CRITICAL).
package klog

import (
	"os"

	"github.com/rs/zerolog"
)

var configured bool

// Level maps the config file's level names onto zerolog levels.
func Level(name string) zerolog.Level {
	switch name {
	case "DEBUG":
		return zerolog.DebugLevel
	case "INFO":
		return zerolog.InfoLevel
	case "WARNING":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	case "CRITICAL":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

// Configure sets zerolog's global level and returns a new logger on every
// call; only the first call installs it as zerolog.DefaultContextLogger.
func Configure(levelName string) zerolog.Logger {
	level := Level(levelName)
	zerolog.SetGlobalLevel(level)

	var logger zerolog.Logger
	if isTerminal(os.Stderr) {
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: "2006/Jan/02 - 15:04:05",
		}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if !configured {
		zerolog.DefaultContextLogger = &logger
		configured = true
	}
	return logger
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
