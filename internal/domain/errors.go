package domain

import "fmt"

// ErrorCode is a stable, machine-readable error classification surfaced to
// the host interface and used internally to decide retry behavior.
type ErrorCode string

const (
	CodeValidation               ErrorCode = "VALIDATION"
	CodeNotFound                 ErrorCode = "NOT_FOUND"
	CodeDuplicateSiteIdentifier  ErrorCode = "DUPLICATE_SITE_IDENTIFIER"
	CodeDuplicateMonitorID       ErrorCode = "DUPLICATE_MONITOR_ID"
	CodeNoMonitors               ErrorCode = "NO_MONITORS"
	CodeSchemaNewer              ErrorCode = "SCHEMA_NEWER"
	CodeIntegrityFailed          ErrorCode = "INTEGRITY_FAILED"
	CodeTimeout                  ErrorCode = "TIMEOUT"
	CodeTransient                ErrorCode = "TRANSIENT"
	CodeCancelled                ErrorCode = "CANCELLED"
	CodeInternal                 ErrorCode = "INTERNAL"
)

// Error is the uniform error envelope that crosses every component
// boundary. Code is stable and machine-readable; Message is safe to show
// to a host; Details carries structured context (e.g. per-field validation
// issues); Cause is the underlying error, preserved for logging only.
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// NewError builds a codeless-cause domain error.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewErrorf builds a domain error with a formatted message.
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a stable code and message to an underlying cause.
func Wrap(code ErrorCode, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// WithDetails returns a copy of e with Details set.
func (e *Error) WithDetails(details map[string]any) *Error {
	cp := *e
	cp.Details = details
	return &cp
}

// IsCode reports whether err is a *Error carrying the given code.
func IsCode(err error, code ErrorCode) bool {
	de, ok := err.(*Error)
	if !ok {
		return false
	}
	return de.Code == code
}

// IsTransient reports whether err should be retried by the operational hook.
func IsTransient(err error) bool {
	de, ok := err.(*Error)
	if !ok {
		// Unclassified errors are retried: only explicitly fail-fast
		// classes (validation, not-found, duplicate, ...) short-circuit.
		return true
	}
	switch de.Code {
	case CodeTransient, CodeTimeout:
		return true
	case CodeValidation, CodeNotFound, CodeDuplicateSiteIdentifier,
		CodeDuplicateMonitorID, CodeNoMonitors, CodeSchemaNewer,
		CodeIntegrityFailed, CodeCancelled:
		return false
	default:
		return true
	}
}
