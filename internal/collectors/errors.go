package collectors

import (
	"fmt"
)

// ErrorType represents the category of collector error.
type ErrorType string

const (
	// ErrorTypeCollection indicates the data source could not be read.
	ErrorTypeCollection ErrorType = "collection"

	// ErrorTypeConfiguration indicates a configuration error.
	ErrorTypeConfiguration ErrorType = "configuration"

	// ErrorTypeNotFound indicates a configured device or mountpoint is missing.
	ErrorTypeNotFound ErrorType = "not_found"
)

// CollectorError represents an error from a collector with context.
type CollectorError struct {
	Collector string
	Type      ErrorType
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *CollectorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %s error: %s: %v", e.Collector, e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s %s error: %s", e.Collector, e.Type, e.Message)
}

// Unwrap returns the wrapped error.
func (e *CollectorError) Unwrap() error {
	return e.Err
}

// NewCollectorError creates a new collector error.
func NewCollectorError(collector string, errType ErrorType, message string, err error) *CollectorError {
	return &CollectorError{
		Collector: collector,
		Type:      errType,
		Message:   message,
		Err:       err,
	}
}
