// Package logger provides the shared structured logger for the application.
package logger

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	defaultLogger zerolog.Logger
	once          sync.Once
)

// Init initializes the default logger with a JSON writer on os.Stdout. The
// level comes from MEDALERTS_LOG_LEVEL when set, otherwise info. It ensures
// that the logger is initialized only once.
func Init() {
	once.Do(func() {
		level := zerolog.InfoLevel
		if raw := os.Getenv("MEDALERTS_LOG_LEVEL"); raw != "" {
			if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
				level = parsed
			}
		}
		zerolog.TimeFieldFormat = time.RFC3339
		defaultLogger = zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	})
}

// Get returns the initialized default logger.
// It calls Init() to ensure the logger is ready before returning it.
func Get() *zerolog.Logger {
	Init()
	return &defaultLogger
}

// Info logs an informational message using the default logger.
func Info(msg string) {
	Get().Info().Msg(msg)
}

// Warn logs a warning message using the default logger.
func Warn(msg string) {
	Get().Warn().Msg(msg)
}

// Error logs an error with its cause using the default logger.
func Error(msg string, err error) {
	Get().Error().Err(err).Msg(msg)
}

// Debug logs a debug message using the default logger.
func Debug(msg string) {
	Get().Debug().Msg(msg)
}
