package types

// Logger is the logging contract used across the kernel. Every
// component takes a Logger instead of reaching for a package-level
// global, so a host process can route kernel diagnostics anywhere it
// likes (see definition.DefaultLogger for the logrus-backed default).
type Logger interface {
	Info(v ...interface{})
	Infof(format string, v ...interface{})

	Warn(v ...interface{})
	Warnf(format string, v ...interface{})

	Error(v ...interface{})
	Errorf(format string, v ...interface{})

	Debug(v ...interface{})
	Debugf(format string, v ...interface{})

	// Fatal logs and terminates the process. Reserved for
	// ProtocolViolation / ModelContract errors per the error handling
	// design: no error bubbles out of a worker, fatal errors abort.
	Fatal(v ...interface{})
	Fatalf(format string, v ...interface{})

	// ToggleDebug enables or disables Debug/Debugf output and returns
	// the resulting state.
	ToggleDebug(value bool) bool
}
