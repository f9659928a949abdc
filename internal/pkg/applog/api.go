package applog

// AppLogger defines the logging interface shared by every component.
type AppLogger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
	Trace(msg string, args ...any)
	Fatal(msg string, args ...any)
}

var _ AppLogger = (*DefaultLogger)(nil)
