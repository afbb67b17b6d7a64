// Package logging configures the process-wide structured logger.
package logging

import (
	"github.com/sirupsen/logrus"

	"loyka/internal/config"
)

// Fields is an alias for structured logging fields.
type Fields = logrus.Fields

// NewLogger creates a JSON logger at the level set by LOG_LEVEL.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	level, err := logrus.ParseLevel(config.GetEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// NewLoggerWithService creates a logger tagged with a service field.
func NewLoggerWithService(serviceName string) *logrus.Entry {
	return NewLogger().WithField("service", serviceName)
}
