// Package errors provides structured error types for the liebert agent and
// controller, with categorization into fatal and component-local failures.
package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the category of error
type ErrorType int

const (
	// ErrTypeUnknown represents an unknown error type
	ErrTypeUnknown ErrorType = iota
	// ErrTypeNetwork represents socket errors (retryable)
	ErrTypeNetwork
	// ErrTypeConfig represents configuration errors (fatal)
	ErrTypeConfig
	// ErrTypeProtocol represents malformed wire input (connection-local)
	ErrTypeProtocol
	// ErrTypeExternal represents a failed subprocess or storage backend
	ErrTypeExternal
	// ErrTypeInternal represents internal errors (fatal)
	ErrTypeInternal
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeNetwork:
		return "network"
	case ErrTypeConfig:
		return "config"
	case ErrTypeProtocol:
		return "protocol"
	case ErrTypeExternal:
		return "external"
	case ErrTypeInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// Severity represents the severity level of an error
type Severity int

const (
	// SeverityLow indicates a minor issue that doesn't affect functionality
	SeverityLow Severity = iota
	// SeverityMedium indicates an issue that may degrade functionality
	SeverityMedium
	// SeverityHigh indicates a serious issue affecting core functionality
	SeverityHigh
	// SeverityCritical indicates a failure that ends the process
	SeverityCritical
)

// ComponentError represents a structured error with context and metadata
type ComponentError struct {
	Type      ErrorType
	Severity  Severity
	Message   string
	Cause     error
	Component string
	Operation string
	Timestamp time.Time
	Context   map[string]interface{}
}

// Error implements the error interface
func (e *ComponentError) Error() string {
	prefix := e.Component
	if e.Operation != "" {
		prefix = e.Component + " " + e.Operation
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

func (e *ComponentError) Unwrap() error {
	return e.Cause
}

// Is matches on error type
func (e *ComponentError) Is(target error) bool {
	t, ok := target.(*ComponentError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// ErrorBuilder provides a fluent interface for building errors
type ErrorBuilder struct {
	err *ComponentError
}

// NewError creates a new error builder
func NewError(errType ErrorType, message string) *ErrorBuilder {
	return &ErrorBuilder{
		err: &ComponentError{
			Type:      errType,
			Message:   message,
			Timestamp: time.Now(),
			Severity:  SeverityMedium,
			Context:   make(map[string]interface{}),
		},
	}
}

// WithCause adds the underlying cause
func (b *ErrorBuilder) WithCause(cause error) *ErrorBuilder {
	b.err.Cause = cause
	return b
}

// WithComponent sets the component where the error occurred
func (b *ErrorBuilder) WithComponent(component string) *ErrorBuilder {
	b.err.Component = component
	return b
}

// WithOperation sets the operation that failed
func (b *ErrorBuilder) WithOperation(operation string) *ErrorBuilder {
	b.err.Operation = operation
	return b
}

// WithSeverity sets the error severity
func (b *ErrorBuilder) WithSeverity(severity Severity) *ErrorBuilder {
	b.err.Severity = severity
	return b
}

func (b *ErrorBuilder) WithContext(key string, value interface{}) *ErrorBuilder {
	b.err.Context[key] = value
	return b
}

func (b *ErrorBuilder) Build() *ComponentError {
	return b.err
}

// Common error constructors

// NetworkError creates a socket error for the given component and operation
func NetworkError(component, operation string, cause error) *ComponentError {
	return NewError(ErrTypeNetwork, "socket error").
		WithCause(cause).
		WithComponent(component).
		WithOperation(operation).
		Build()
}

// ConfigError creates a configuration error for the given key
func ConfigError(field string, message string) *ComponentError {
	return NewError(ErrTypeConfig, message).
		WithComponent("config").
		WithContext("field", field).
		WithSeverity(SeverityCritical).
		Build()
}

// ProtocolError creates a decode error carrying the offending line
func ProtocolError(message string, line string) *ComponentError {
	return NewError(ErrTypeProtocol, message).
		WithComponent("protocol").
		WithOperation("decode").
		WithContext("line", line).
		Build()
}

// ExternalError creates an error for a failed subprocess or backend call
func ExternalError(operation string, cause error) *ComponentError {
	return NewError(ErrTypeExternal, "external call failed").
		WithCause(cause).
		WithComponent("external").
		WithOperation(operation).
		Build()
}

func GetErrorType(err error) ErrorType {
	var ce *ComponentError
	if errors.As(err, &ce) {
		return ce.Type
	}
	return ErrTypeUnknown
}
