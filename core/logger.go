package core

// Logger is the app-wide structured-ish logging contract. Implementations may
// attach a user.User passed in args to the reported event.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
