package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogrusLogger adapts a *logrus.Logger to the Logger interface. It is the
// production backend for clients that want structured, rotated logs
// instead of the default NoopLogger.
type LogrusLogger struct {
	entry *logrus.Logger
}

// LogrusOption configures NewLogrusLogger.
type LogrusOption func(*LogrusLogger)

// NewLogrusLogger builds a Logger backed by logrus, writing to stderr by
// default. Use WithRotation to write to a rotated file instead.
func NewLogrusLogger(opts ...LogrusOption) *LogrusLogger {
	base := logrus.New()
	base.SetFormatter(&logrus.JSONFormatter{})
	base.SetOutput(os.Stderr)

	l := &LogrusLogger{entry: base}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// WithRotation routes log output through a lumberjack.Logger so files are
// rotated by size/age instead of growing unbounded.
func WithRotation(filename string, maxSizeMB, maxBackups, maxAgeDays int) LogrusOption {
	return func(l *LogrusLogger) {
		l.entry.SetOutput(&lumberjack.Logger{
			Filename:   filename,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		})
	}
}

// WithOutput sends log output to an arbitrary writer (tests mainly).
func WithOutput(w io.Writer) LogrusOption {
	return func(l *LogrusLogger) {
		l.entry.SetOutput(w)
	}
}

func fields(keysAndValues []interface{}) logrus.Fields {
	f := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		f[key] = keysAndValues[i+1]
	}
	return f
}

func (l *LogrusLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Debug(msg)
}

func (l *LogrusLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Info(msg)
}

func (l *LogrusLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Warn(msg)
}

func (l *LogrusLogger) Error(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(fields(keysAndValues)).Error(msg)
}
