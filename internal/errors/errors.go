package errors

import (
	stderrors "errors"
	"fmt"
)

// ErrorCode is a stable identifier for a failure mode. Codes are part of the
// HTTP API surface, so never rename one.
type ErrorCode string

const (
	// ParseError marks malformed compiler output or analysis artifacts. Soft: logged and skipped.
	ParseError ErrorCode = "PARSE_ERROR"
	// NotFound marks a lookup of an id or name absent from the index.
	NotFound ErrorCode = "NOT_FOUND"
	// ProcessError marks a failed spawn or unreadable output of the build subprocess.
	ProcessError ErrorCode = "PROCESS_ERROR"
	// InvariantViolation marks inconsistent input, e.g. non-dense external crate numbering.
	InvariantViolation ErrorCode = "INVARIANT_VIOLATION"
	// IndexMissing means no analysis has been loaded yet.
	IndexMissing ErrorCode = "INDEX_MISSING"
	// InvalidArgument marks a malformed request parameter.
	InvalidArgument ErrorCode = "INVALID_ARGUMENT"
	// InternalError indicates an unexpected error.
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	RunCommand FixActionType = "run-command"
	OpenDocs   FixActionType = "open-docs"
)

// FixAction is a suggested remedy surfaced to API clients.
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// Error is the error type returned across package boundaries.
type Error struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error
}

// New creates an Error, attaching the default fixes for code.
func New(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:           code,
		Message:        message,
		SuggestedFixes: GetSuggestedFixes(code),
		cause:          cause,
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...), nil)
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details interface{}) *Error {
	e.Details = details
	return e
}

// CodeOf returns the code of the first *Error in err's chain, or
// InternalError when there is none.
func CodeOf(err error) ErrorCode {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Code
	}
	return InternalError
}

// Is reports whether err carries code.
func Is(err error, code ErrorCode) bool {
	return err != nil && CodeOf(err) == code
}

var errorActions = map[ErrorCode][]FixAction{
	IndexMissing: {
		{
			Type:        RunCommand,
			Command:     "srcweb check",
			Description: "Run a build with save-analysis enabled to produce analysis data",
		},
	},
	ProcessError: {
		{
			Type:        RunCommand,
			Command:     "srcweb config",
			Description: "Check build.command and build.args",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	return errorActions[code]
}
