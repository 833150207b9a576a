package logger

import (
	"os"

	"github.com/rs/zerolog"
)

// Setup builds the process-wide logger. Dev mode switches to the console
// writer and debug level.
func Setup(dev bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}

	logger := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	if dev {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Caller().Logger()
	}

	return logger
}
