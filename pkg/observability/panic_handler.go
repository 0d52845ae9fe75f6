package observability

import (
	"fmt"
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with the stack trace.
// Meant for defer statements in background goroutines where a panic must
// not take the process down.
func RecoverPanic(logger *Logger, where string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("where", where).
			Error("PANIC recovered")
	}
}

// RecoverPanicWithCallback recovers from a panic, logs it, then runs the
// callback. Useful for closing channels or releasing state so that
// goroutines waiting on the panicked worker do not block forever.
func RecoverPanicWithCallback(logger *Logger, where string, callback func()) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("where", where).
			Error("PANIC recovered")
		if callback != nil {
			callback()
		}
	}
}

// PanicToError converts a recovered panic value into an error.
// Returns nil when r is nil.
func PanicToError(r interface{}) error {
	if r != nil {
		return fmt.Errorf("panic: %v", r)
	}
	return nil
}
