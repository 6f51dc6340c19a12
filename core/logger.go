package core

// Logger is implemented by services/logger.
// args may contain errors, map[string]interface{} extras and at most one Actor.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Actor identifies the authenticated caller of an operation.
type Actor struct {
	ID       string
	Username string
	Email    string
	Roles    []string
}
