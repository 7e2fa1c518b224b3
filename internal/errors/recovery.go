package errors

import (
	stderrors "errors"
	"fmt"
	"runtime/debug"
)

// PanicError converts a recovered panic value into an internal error that
// carries the goroutine stack. Call it from a deferred function with the
// value returned by recover().
func PanicError(operation string, r interface{}) *ComponentError {
	if r == nil {
		return nil
	}

	var cause error
	if err, ok := r.(error); ok {
		cause = err
	} else {
		cause = fmt.Errorf("panic: %v", r)
	}

	return NewError(ErrTypeInternal, fmt.Sprintf("panic recovered: %v", r)).
		WithCause(cause).
		WithComponent("recovery").
		WithOperation(operation).
		WithContext("stack", string(debug.Stack())).
		WithSeverity(SeverityCritical).
		Build()
}

// Stack returns the captured stack trace of a panic error, if any.
func Stack(err error) string {
	var ce *ComponentError
	if As(err, &ce) {
		if s, ok := ce.Context["stack"].(string); ok {
			return s
		}
	}
	return ""
}

// As and Is forward to the standard library so callers importing this package
// under the name errors keep the usual helpers.
func As(err error, target interface{}) bool { return stderrors.As(err, target) }

func Is(err, target error) bool { return stderrors.Is(err, target) }

func New(text string) error { return stderrors.New(text) }
