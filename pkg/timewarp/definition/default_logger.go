// Package definition holds the default, swappable implementations of
// the small interfaces core/ depends on (today: just the Logger). Kept
// as its own package, mirroring the teacher repo's split between
// "core" (the protocol) and "definition" (the defaults a caller gets
// for free).
package definition

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/lattice-sim/timewarp/pkg/timewarp/types"
)

// DefaultLogger is the Logger used when a caller does not supply one
// of their own. It keeps the shape of the teacher's own
// definition.DefaultLogger (a thin wrapper with Info/Warn/Error/
// Debug/Fatal variants and a debug toggle; this one has no Panic
// variants) but is backed by
// logrus instead of the bare standard-library logger, so kernel
// diagnostics come out structured and leveled once many worker
// goroutines are interleaving output.
type DefaultLogger struct {
	entry *logrus.Entry
	debug bool
}

// NewDefaultLogger builds a DefaultLogger writing to stderr with
// debug-level output disabled.
func NewDefaultLogger() *DefaultLogger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(logrus.InfoLevel)
	return &DefaultLogger{entry: logrus.NewEntry(l)}
}

// NewFieldLogger builds a DefaultLogger pre-populated with structured
// fields, e.g. {"lp": id, "node": nodeID}, so every line it emits
// carries that context without the caller repeating it.
func NewFieldLogger(fields logrus.Fields) *DefaultLogger {
	base := NewDefaultLogger()
	return &DefaultLogger{entry: base.entry.WithFields(fields), debug: base.debug}
}

var _ types.Logger = (*DefaultLogger)(nil)

func (l *DefaultLogger) Info(v ...interface{})                   { l.entry.Info(v...) }
func (l *DefaultLogger) Infof(format string, v ...interface{})   { l.entry.Infof(format, v...) }
func (l *DefaultLogger) Warn(v ...interface{})                   { l.entry.Warn(v...) }
func (l *DefaultLogger) Warnf(format string, v ...interface{})   { l.entry.Warnf(format, v...) }
func (l *DefaultLogger) Error(v ...interface{})                  { l.entry.Error(v...) }
func (l *DefaultLogger) Errorf(format string, v ...interface{})  { l.entry.Errorf(format, v...) }

func (l *DefaultLogger) Debug(v ...interface{}) {
	if l.debug {
		l.entry.Debug(v...)
	}
}

func (l *DefaultLogger) Debugf(format string, v ...interface{}) {
	if l.debug {
		l.entry.Debugf(format, v...)
	}
}

// Fatal logs at fatal level and terminates the process, matching the
// error handling design's policy that ProtocolViolation/ModelContract
// errors abort with diagnostics.
func (l *DefaultLogger) Fatal(v ...interface{}) { l.entry.Fatal(v...) }
func (l *DefaultLogger) Fatalf(format string, v ...interface{}) { l.entry.Fatalf(format, v...) }

func (l *DefaultLogger) ToggleDebug(value bool) bool {
	l.debug = value
	if value {
		l.entry.Logger.SetLevel(logrus.DebugLevel)
	} else {
		l.entry.Logger.SetLevel(logrus.InfoLevel)
	}
	return l.debug
}
