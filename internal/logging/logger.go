// Package logging builds the structured loggers shared by all components.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ppiankov/geowatch/internal/config"
)

// Fields represents structured logging fields
type Fields = logrus.Fields

// New returns a logger writing to stderr with the service field set on
// every entry. Format comes from GEOWATCH_LOG_FORMAT ("json" or "text"),
// level from GEOWATCH_LOG_LEVEL.
func New(service string) *logrus.Entry {
	return NewWithOutput(service, os.Stderr)
}

// NewWithOutput is New with an explicit writer.
func NewWithOutput(service string, w io.Writer) *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetLevel(config.GetLogLevel())
	if strings.EqualFold(config.GetEnv(config.EnvLogFormat, "text"), "json") {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger.WithField("service", service)
}

// Nop returns a logger that discards everything.
func Nop() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logrus.NewEntry(logger)
}

// OrNop returns l, or a discarding logger when l is nil.
func OrNop(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Nop()
	}
	return l
}
