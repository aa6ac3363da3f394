// Package errors provides the coded error type shared by the planning and execution layers.
package errors

import (
	"context"
	"errors"
	"fmt"
)

// Error codes. Pre-flight rejections, planning failures and plan outcomes each
// get their own code so callers can branch without parsing messages.
const (
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeComplexityExceeded = "COMPLEXITY_EXCEEDED"
	CodeWriteNotPermitted  = "WRITE_NOT_PERMITTED"
	CodeQueryFailed        = "QUERY_FAILED"
	CodeConnectionFailed   = "CONNECTION_FAILED"
	CodePlanningFailed     = "PLANNING_FAILED"
	CodeGenerationFailed   = "GENERATION_FAILED"
	CodeSynthesisFailed    = "SYNTHESIS_FAILED"
	CodeAllQueriesFailed   = "ALL_QUERIES_FAILED"
	CodeDependencyFailed   = "DEPENDENCY_FAILED"
	CodeSchemaUnavailable  = "SCHEMA_UNAVAILABLE"
	CodeHistoryFailed      = "HISTORY_FAILED"
	CodeExportFailed       = "EXPORT_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
	CodeUnavailable        = "UNAVAILABLE"
	CodeDeadlineExceeded   = "DEADLINE_EXCEEDED"
	CodeCanceled           = "CANCELED"
	CodeResourceExhausted  = "RESOURCE_EXHAUSTED"
	CodeFailedPrecondition = "FAILED_PRECONDITION"
	CodeNotFound           = "NOT_FOUND"
)

// Error is a coded error with an optional cause and structured details.
type Error struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
	Cause   error                  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches on code only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails replaces the error details.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithDetail adds a single detail to the error.
func (e *Error) WithDetail(key string, value interface{}) *Error {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// Sentinel errors. Compare with errors.Is; they match any error with the same code.
var (
	ErrInvalidQuery       = &Error{Code: CodeInvalidRequest, Message: "invalid query"}
	ErrEmptyQuestion      = &Error{Code: CodeInvalidRequest, Message: "question must not be empty"}
	ErrWriteNotPermitted  = &Error{Code: CodeWriteNotPermitted, Message: "Write operations not permitted"}
	ErrComplexityExceeded = &Error{Code: CodeComplexityExceeded, Message: "query complexity exceeds maximum"}
	ErrPlanningFailed     = &Error{Code: CodePlanningFailed, Message: "query planning failed"}
	ErrAllQueriesFailed   = &Error{Code: CodeAllQueriesFailed, Message: "all queries in plan failed"}
	ErrConnectionFailed   = &Error{Code: CodeUnavailable, Message: "graph database connection failed"}
	ErrQueryTimeout       = &Error{Code: CodeDeadlineExceeded, Message: "query execution timeout"}
	ErrResourceExhausted  = &Error{Code: CodeResourceExhausted, Message: "resource limit exceeded"}
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
)

// New creates a new Error with the given code and message.
func New(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Newf creates a new Error with a formatted message.
func Newf(code, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap wraps an error with an Error.
func Wrap(err error, code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: message,
		Cause:   err,
	}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code, format string, args ...interface{}) *Error {
	if err == nil {
		return nil
	}
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
		Cause:   err,
	}
}

// FromContext converts a context error into a coded error. It returns nil for other errors.
func FromContext(err error) *Error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, CodeDeadlineExceeded, "deadline exceeded")
	case errors.Is(err, context.Canceled):
		return Wrap(err, CodeCanceled, "operation canceled")
	default:
		return nil
	}
}

func hasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsInvalidRequest checks if an error is an invalid request error.
func IsInvalidRequest(err error) bool {
	return hasCode(err, CodeInvalidRequest)
}

// IsPreflightRejection reports whether err was produced by static vetting rather than the database.
func IsPreflightRejection(err error) bool {
	return hasCode(err, CodeComplexityExceeded) || hasCode(err, CodeWriteNotPermitted)
}

// IsPlanningFailed checks if an error is a planning failure.
func IsPlanningFailed(err error) bool {
	return hasCode(err, CodePlanningFailed)
}

// IsTimeout checks if an error is a deadline error.
func IsTimeout(err error) bool {
	return hasCode(err, CodeDeadlineExceeded)
}

// IsNotFound checks if an error is a not found error.
func IsNotFound(err error) bool {
	return hasCode(err, CodeNotFound)
}

// IsInternal checks if an error is an internal error.
func IsInternal(err error) bool {
	return hasCode(err, CodeInternal)
}

// GetCode extracts the error code from an error.
func GetCode(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// GetMessage extracts the error message from an error.
func GetMessage(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
