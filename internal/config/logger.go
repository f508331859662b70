package config

import (
	"io"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the harness logger. Debug output (command lines, env
// overrides, raw captured streams) is only emitted when debug is set.
func NewLogger(debug bool, w io.Writer) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
		DisableColors:    true,
	})
	if debug {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}
	return logger
}

// LogWarnings emits every warning collected while resolving env.
func (e *Env) LogWarnings(logger logrus.FieldLogger) {
	for _, warning := range e.Warnings {
		logger.Warn(warning)
	}
}
