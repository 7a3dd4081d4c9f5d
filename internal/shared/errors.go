package shared

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies failures raised inside the execution engine.
type ErrorCategory string

const (
	CategoryParse      ErrorCategory = "parse"
	CategorySubmission ErrorCategory = "submission"
	CategoryExecution  ErrorCategory = "execution"
	CategoryTimeout    ErrorCategory = "timeout"
	CategoryTransport  ErrorCategory = "transport"
	CategoryMedia      ErrorCategory = "media"
)

// Error is the categorized error carried between engine components.
type Error struct {
	Category ErrorCategory
	Op       string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, msg)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by category so errors.Is(err, &Error{Category: CategoryMedia}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Category == e.Category && (t.Op == "" || t.Op == e.Op)
}

func newError(category ErrorCategory, op, message string, err error) *Error {
	return &Error{Category: category, Op: op, Message: message, Err: err}
}

func NewParseError(op, message string, err error) *Error {
	return newError(CategoryParse, op, message, err)
}

func NewSubmissionError(op, message string, err error) *Error {
	return newError(CategorySubmission, op, message, err)
}

func NewExecutionError(op, message string, err error) *Error {
	return newError(CategoryExecution, op, message, err)
}

func NewTimeoutError(op, message string, err error) *Error {
	return newError(CategoryTimeout, op, message, err)
}

func NewTransportError(op, message string, err error) *Error {
	return newError(CategoryTransport, op, message, err)
}

func NewMediaError(op, message string, err error) *Error {
	return newError(CategoryMedia, op, message, err)
}

// IsCategory reports whether err is (or wraps) an *Error of the given category.
func IsCategory(err error, category ErrorCategory) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Category == category
	}
	return false
}

// CategoryOf returns the category of the first *Error in the chain, or "" when there is none.
func CategoryOf(err error) ErrorCategory {
	var e *Error
	if errors.As(err, &e) {
		return e.Category
	}
	return ""
}
