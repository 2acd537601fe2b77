package yalogger

// nopLogger discards everything.
type nopLogger struct{}

// Nop returns a logger that drops every message. It is the default sink for
// components constructed without a logger.
func Nop() Logger {
	return nopLogger{}
}

func (nopLogger) Debug(string)          {}
func (nopLogger) Debugf(string, ...any) {}
func (nopLogger) Info(string)           {}
func (nopLogger) Infof(string, ...any)  {}
func (nopLogger) Warn(string)           {}
func (nopLogger) Warnf(string, ...any)  {}
func (nopLogger) Error(string)          {}
func (nopLogger) Errorf(string, ...any) {}

func (n nopLogger) WithField(string, any) Logger {
	return n
}

func (n nopLogger) WithFields(map[string]any) Logger {
	return n
}

func (n nopLogger) WithError(error) Logger {
	return n
}
