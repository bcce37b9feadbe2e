package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeRoute    ErrorType = "route"
	ErrorTypeModule   ErrorType = "module"
	ErrorTypeRender   ErrorType = "render"
	ErrorTypeConfig   ErrorType = "config"
	ErrorTypeIO       ErrorType = "io"
	ErrorTypeInternal ErrorType = "internal"
)

// Error codes shared across packages.
const (
	ErrCodeRouteParams     = "ERR_ROUTE_PARAMS"
	ErrCodeRouteGenerator  = "ERR_ROUTE_GENERATOR"
	ErrCodeUnknownModule   = "ERR_UNKNOWN_MODULE"
	ErrCodeRenderFailed    = "ERR_RENDER_FAILED"
	ErrCodeRenderTimeout   = "ERR_RENDER_TIMEOUT"
	ErrCodeSubmitFailed    = "ERR_SUBMIT_FAILED"
	ErrCodeNoOutput        = "ERR_NO_OUTPUT"
	ErrCodeInvalidConfig   = "ERR_INVALID_CONFIG"
	ErrCodeWriteFailed     = "ERR_WRITE_FAILED"
	ErrCodeManifestInvalid = "ERR_MANIFEST_INVALID"
)

// Error is a structured error type with context.
type Error struct {
	Type    ErrorType
	Code    string
	Message string
	Cause   error
	// Path is the route or page path the error belongs to, if any
	Path        string
	Recoverable bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}
	if e.Path != "" {
		parts = append(parts, e.Path)
	}
	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")
	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}
	return result
}

// Unwrap returns the underlying cause error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}
	return false
}

// WithPath adds route or page path context.
func (e *Error) WithPath(path string) *Error {
	e.Path = path
	return e
}

// NewRouteError creates a route resolution error. These are reported through
// handlers and never abort a build.
func NewRouteError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeRoute,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewModuleError creates a module graph error.
func NewModuleError(code, message string) *Error {
	return &Error{
		Type:        ErrorTypeModule,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewRenderError creates a page render error.
func NewRenderError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeRender,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewConfigError creates a fatal configuration error.
func NewConfigError(code, message string, cause error) *Error {
	return &Error{
		Type:    ErrorTypeConfig,
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *Error {
	return &Error{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// IsFatal reports whether err must stop a build before any work begins.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Type == ErrorTypeConfig || e.Type == ErrorTypeInternal
	}
	return false
}

// Reason returns the text recorded for a failed page. Panics recovered
// during rendering keep their stack in the message.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
