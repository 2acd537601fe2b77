// Package yalogger defines the structured logging contract the cache
// components write to, plus a logrus-backed implementation and a no-op sink.
//
// The cache never fails because of its logger: every implementation used here
// must accept any field value and must not panic. Components receive a
// [Logger] by reference and default to [Nop] when none is configured, so
// logging stays an opt-in concern of the embedding application.
//
// # Quick start
//
//	log := yalogger.New(nil) // logrus with default settings
//	log.WithField("key", "user~42").Debug("cache hit")
package yalogger

import (
	"github.com/sirupsen/logrus"
)

// Logger is the structured logging interface consumed by the cache core and
// its storage backends.
type Logger interface {
	// Debug logs a message at the Debug level.
	//
	// Example:
	//
	//	log.Debug("revalidation started")
	Debug(msg string)

	// Debugf logs a formatted message at the Debug level.
	//
	// Example:
	//
	//	log.Debugf("scanned %d references", n)
	Debugf(format string, args ...any)

	// Info logs a message at the Info level.
	Info(msg string)

	// Infof logs a formatted message at the Info level.
	Infof(format string, args ...any)

	// Warn logs a message at the Warn level.
	//
	// Example:
	//
	//	log.Warn("references are not enabled")
	Warn(msg string)

	// Warnf logs a formatted message at the Warn level.
	Warnf(format string, args ...any)

	// Error logs a message at the Error level.
	//
	// Example:
	//
	//	log.WithError(err).Error("redis SET failed")
	Error(msg string)

	// Errorf logs a formatted message at the Error level.
	Errorf(format string, args ...any)

	// WithField returns a logger carrying one extra context field.
	//
	// Example:
	//
	//	log.WithField("storage", "redis")
	WithField(key string, value any) Logger

	// WithFields returns a logger carrying several extra context fields.
	//
	// Example:
	//
	//	log.WithFields(map[string]any{"key": key, "ttl": ttl})
	WithFields(fields map[string]any) Logger

	// WithError returns a logger carrying the error under the standard
	// `error` field.
	WithError(err error) Logger
}

// logrusLogger adapts a *logrus.Entry to [Logger].
type logrusLogger struct {
	entry *logrus.Entry
}

// New wraps the given logrus logger. A nil argument yields a ready-to-use
// logger with logrus defaults.
//
// Example:
//
//	base := logrus.New()
//	base.SetLevel(logrus.DebugLevel)
//	log := yalogger.New(base)
func New(base *logrus.Logger) Logger {
	if base == nil {
		base = logrus.New()
	}

	return &logrusLogger{entry: logrus.NewEntry(base)}
}

func (l *logrusLogger) Debug(msg string) {
	l.entry.Debug(msg)
}

func (l *logrusLogger) Debugf(format string, args ...any) {
	l.entry.Debugf(format, args...)
}

func (l *logrusLogger) Info(msg string) {
	l.entry.Info(msg)
}

func (l *logrusLogger) Infof(format string, args ...any) {
	l.entry.Infof(format, args...)
}

func (l *logrusLogger) Warn(msg string) {
	l.entry.Warn(msg)
}

func (l *logrusLogger) Warnf(format string, args ...any) {
	l.entry.Warnf(format, args...)
}

func (l *logrusLogger) Error(msg string) {
	l.entry.Error(msg)
}

func (l *logrusLogger) Errorf(format string, args ...any) {
	l.entry.Errorf(format, args...)
}

func (l *logrusLogger) WithField(key string, value any) Logger {
	return &logrusLogger{entry: l.entry.WithField(key, value)}
}

func (l *logrusLogger) WithFields(fields map[string]any) Logger {
	return &logrusLogger{entry: l.entry.WithFields(fields)}
}

func (l *logrusLogger) WithError(err error) Logger {
	return &logrusLogger{entry: l.entry.WithError(err)}
}
