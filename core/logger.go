package core

// Logger is any service that can report messages and errors.
// args may contain errors, map[string]interface{} extras and at most one Person.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Person identifies the inspector a log entry relates to.
type Person struct {
	ID       string
	Username string
	Email    string
}
