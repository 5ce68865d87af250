package core

// Logger is any sink the client can report through. Implementations may
// inspect args for a session user and attach it to the report.
// expected fmt: msg | error, map[string]interface{}, user
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}
