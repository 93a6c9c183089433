package common

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger is the leveled logging contract used across the packages.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

var _ Logger = (*logrus.Logger)(nil)

// NewLogger builds a logrus logger writing to stderr. Unknown levels fall back
// to info.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

// DiscardLogger drops everything; handy as a default and in tests.
func DiscardLogger() Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
