// Package log provides a package-level logrus logger shared by every
// devfarm component, so callers don't have to thread a *logrus.Logger
// through constructors just to log a line.
package log

import (
	"github.com/sirupsen/logrus"
)

var Log = logrus.New()

// Fields and Entry are re-exported so callers can build up structured
// log lines (via WithFields) without importing logrus directly.
type Fields = logrus.Fields
type Entry = logrus.Entry

func AddHook(hook logrus.Hook) {
	Log.AddHook(hook)
}

func SetLevel(level logrus.Level) {
	Log.SetLevel(level)
}

func WithField(key string, value interface{}) *logrus.Entry {
	return Log.WithField(key, value)
}

func WithFields(fields logrus.Fields) *logrus.Entry {
	return Log.WithFields(fields)
}

func Debug(args ...interface{}) { Log.Debug(args...) }

func Debugf(format string, args ...interface{}) { Log.Debugf(format, args...) }

func Error(args ...interface{}) { Log.Error(args...) }

func Errorf(format string, args ...interface{}) { Log.Errorf(format, args...) }

func Info(args ...interface{}) { Log.Info(args...) }

func Infof(format string, args ...interface{}) { Log.Infof(format, args...) }

func Warn(args ...interface{}) { Log.Warn(args...) }

func Warnf(format string, args ...interface{}) { Log.Warnf(format, args...) }
