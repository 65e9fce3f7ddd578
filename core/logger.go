package core

// Logger is implemented by every logging backend used by the apps.
// args may hold errors, maps of extra data or the user the entry relates to.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
