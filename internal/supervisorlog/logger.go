// Package supervisorlog provides the supervisor's structured component logger.
//
// Grounded on alex/internal/shared/logging's component-logger shape
// (Info/Warn/Error/Debug(format, args...) plus a per-component name),
// backed by logrus's JSON formatter instead of hand-rolled bracket text.
package supervisorlog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// Logger is the narrow interface every supervisor component depends on.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	WithTask(taskID string) Logger
	WithSession(sessionID string) Logger
}

var (
	rootOnce sync.Once
	root     *logrus.Logger
)

func rootLogger() *logrus.Logger {
	rootOnce.Do(func() {
		root = logrus.New()
		root.SetFormatter(&logrus.JSONFormatter{})
		// The stdio control protocol owns stdout; logs must never appear there.
		root.SetOutput(os.Stderr)
		root.SetLevel(logrus.InfoLevel)
	})
	return root
}

// SetLevel configures the minimum log level for every component logger.
func SetLevel(level string) {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return
	}
	rootLogger().SetLevel(parsed)
}

type componentLogger struct {
	entry *logrus.Entry
}

// NewComponentLogger returns a Logger scoped to the named component.
func NewComponentLogger(component string) Logger {
	return &componentLogger{entry: rootLogger().WithField("component", component)}
}

func (l *componentLogger) Debug(format string, args ...any) { l.entry.Debugf(format, args...) }
func (l *componentLogger) Info(format string, args ...any)  { l.entry.Infof(format, args...) }
func (l *componentLogger) Warn(format string, args ...any)  { l.entry.Warnf(format, args...) }
func (l *componentLogger) Error(format string, args ...any) { l.entry.Errorf(format, args...) }

func (l *componentLogger) WithTask(taskID string) Logger {
	return &componentLogger{entry: l.entry.WithField("task_id", taskID)}
}

func (l *componentLogger) WithSession(sessionID string) Logger {
	return &componentLogger{entry: l.entry.WithField("session_id", sessionID)}
}
