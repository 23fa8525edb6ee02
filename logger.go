package aadtoken

import (
	"github.com/rs/zerolog"
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// LogComponent is the value of the "component" field every adapter adds, so
// engine lines can be told apart from the host application's.
const LogComponent = "aadtoken"

// Logger is the printf-style logging interface used by the engine, the
// resolver and the transport adapters. Adapters exist for logrus, zap and
// zerolog.
type Logger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...interface{}) {}
func (noopLogger) Infof(string, ...interface{})  {}
func (noopLogger) Warnf(string, ...interface{})  {}
func (noopLogger) Errorf(string, ...interface{}) {}

// NewLogrusLogger adapts a logrus logger or entry.
func NewLogrusLogger(l logrus.FieldLogger) Logger {
	return logrusLogger{l.WithField("component", LogComponent)}
}

type logrusLogger struct{ entry logrus.FieldLogger }

func (l logrusLogger) Debugf(format string, args ...interface{}) { l.entry.Debugf(format, args...) }
func (l logrusLogger) Infof(format string, args ...interface{})  { l.entry.Infof(format, args...) }
func (l logrusLogger) Warnf(format string, args ...interface{})  { l.entry.Warnf(format, args...) }
func (l logrusLogger) Errorf(format string, args ...interface{}) { l.entry.Errorf(format, args...) }

// NewZapLogger adapts a sugared zap logger.
func NewZapLogger(l *zap.SugaredLogger) Logger {
	return zapLogger{l.With("component", LogComponent)}
}

type zapLogger struct{ sugar *zap.SugaredLogger }

func (l zapLogger) Debugf(format string, args ...interface{}) { l.sugar.Debugf(format, args...) }
func (l zapLogger) Infof(format string, args ...interface{})  { l.sugar.Infof(format, args...) }
func (l zapLogger) Warnf(format string, args ...interface{})  { l.sugar.Warnf(format, args...) }
func (l zapLogger) Errorf(format string, args ...interface{}) { l.sugar.Errorf(format, args...) }

// NewZerologLogger adapts a zerolog logger. Its level filter applies.
func NewZerologLogger(l zerolog.Logger) Logger {
	return zerologLogger{l.With().Str("component", LogComponent).Logger()}
}

type zerologLogger struct{ log zerolog.Logger }

func (l zerologLogger) Debugf(format string, args ...interface{}) { l.log.Debug().Msgf(format, args...) }
func (l zerologLogger) Infof(format string, args ...interface{})  { l.log.Info().Msgf(format, args...) }
func (l zerologLogger) Warnf(format string, args ...interface{})  { l.log.Warn().Msgf(format, args...) }
func (l zerologLogger) Errorf(format string, args ...interface{}) { l.log.Error().Msgf(format, args...) }
