package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeStore              = "STORE_ERROR"
	ErrCodeRender             = "RENDER_ERROR"
	ErrCodeContractViolation  = "CONTRACT_VIOLATION"
	ErrCodeUnsupportedDiagram = "UNSUPPORTED_DIAGRAM"
)

// GuardError is the structured error type returned at diagramguard boundaries.
type GuardError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	Key     string         `json:"key,omitempty"`
	Cause   error          `json:"-"`
}

func (e *GuardError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("[%s] diagram %s: %s", e.Code, e.Key, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *GuardError) Unwrap() error {
	return e.Cause
}

// NewError creates a new GuardError.
func NewError(code, message string) *GuardError {
	return &GuardError{Code: code, Message: message}
}

// NewErrorf creates a new GuardError with a formatted message.
func NewErrorf(code, format string, args ...any) *GuardError {
	return &GuardError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithKey attaches the diagram key the error refers to.
func (e *GuardError) WithKey(key string) *GuardError {
	e.Key = key
	return e
}

// WithCause attaches an underlying cause.
func (e *GuardError) WithCause(err error) *GuardError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *GuardError) WithDetails(details map[string]any) *GuardError {
	e.Details = details
	return e
}

// HasCode reports whether err wraps a GuardError carrying the given code.
func HasCode(err error, code string) bool {
	var ge *GuardError
	return errors.As(err, &ge) && ge.Code == code
}
