package utils

import "fmt"

// ValidationError represents a rejected input. Field names the offending
// parameter when known and Err carries the sentinel callers match with
// errors.Is.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

// Unwrap exposes the underlying sentinel.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a new ValidationError with a specific message.
//
// Parameters:
//   - message: The validation error message.
//
// Returns:
//   - An error interface wrapping the ValidationError.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// WrapValidation builds a ValidationError for field that unwraps to kind.
func WrapValidation(kind error, field string, format string, args ...interface{}) error {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Err:     kind,
	}
}
