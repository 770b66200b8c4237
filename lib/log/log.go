// Package log provides leveled logging for ecollect.
//
// The functions take an object as their first argument which is
// prefixed to the message, typically the component doing the logging.
package log

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Level describes the verbosity of the log output.
type Level byte

// Log levels in decreasing severity.
const (
	LevelError Level = iota
	LevelNotice
	LevelInfo
	LevelDebug
)

var level = LevelNotice

// SetVerbosity sets the log level from a -v count: 0 is notice, 1 is
// info, 2 or more is debug.
func SetVerbosity(v int) {
	switch {
	case v <= 0:
		level = LevelNotice
		logrus.SetLevel(logrus.WarnLevel)
	case v == 1:
		level = LevelInfo
		logrus.SetLevel(logrus.InfoLevel)
	default:
		level = LevelDebug
		logrus.SetLevel(logrus.DebugLevel)
	}
}

func output(l Level, o interface{}, text string, args ...interface{}) {
	out := fmt.Sprintf(text, args...)
	if o != nil {
		out = fmt.Sprintf("%v: %s", o, out)
	}
	switch l {
	case LevelDebug:
		logrus.Debug(out)
	case LevelInfo:
		logrus.Info(out)
	case LevelNotice:
		logrus.Warn(out)
	case LevelError:
		logrus.Error(out)
	}
}

// Errorf writes error log output for o.  It should always be seen by
// the user.
func Errorf(o interface{}, text string, args ...interface{}) {
	if level >= LevelError {
		output(LevelError, o, text, args...)
	}
}

// Logf writes log output for o at the default level.
func Logf(o interface{}, text string, args ...interface{}) {
	if level >= LevelNotice {
		output(LevelNotice, o, text, args...)
	}
}

// Infof writes info log output for o.  Shown with -v.
func Infof(o interface{}, text string, args ...interface{}) {
	if level >= LevelInfo {
		output(LevelInfo, o, text, args...)
	}
}

// Debugf writes debugging output for o.  Shown with -vv.
func Debugf(o interface{}, text string, args ...interface{}) {
	if level >= LevelDebug {
		output(LevelDebug, o, text, args...)
	}
}
