package workflow

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorClass classifies a workflow error for handling and reporting.
type ErrorClass string

const (
	// ErrorClassConfiguration indicates an invalid graph or workflow
	// definition: duplicate ids, missing dependencies, cycles. Raised
	// before any task runs; no partial execution occurs.
	ErrorClassConfiguration ErrorClass = "configuration"

	// ErrorClassExecution indicates a task action failed or returned a
	// failure result. Recorded per task.
	ErrorClassExecution ErrorClass = "execution"

	// ErrorClassTimeout is a specialization of execution failure raised
	// when an attempt's deadline elapses.
	ErrorClassTimeout ErrorClass = "timeout"

	// ErrorClassPrecondition indicates a mode-level precondition was not
	// met; the blocked step is never attempted.
	ErrorClassPrecondition ErrorClass = "precondition"
)

// Error is a classified workflow error with context.
type Error struct {
	// Class is the error classification.
	Class ErrorClass `json:"class"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Code is an optional error code for programmatic handling.
	Code string `json:"code,omitempty"`

	// Task is the task id the error relates to, if applicable.
	Task string `json:"task,omitempty"`

	// Cycle is the dependency cycle path, for circular-dependency errors.
	Cycle []string `json:"cycle,omitempty"`

	// Err is the underlying error, if any.
	Err error `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", e.Class, e.Message)
	if e.Task != "" {
		fmt.Fprintf(&b, " (task=%s)", e.Task)
	}
	if len(e.Cycle) > 0 {
		fmt.Fprintf(&b, " (cycle=%s)", strings.Join(e.Cycle, " -> "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %s", e.Err.Error())
	}
	return b.String()
}

// Unwrap returns the underlying error for error chain inspection.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is implements error equality checking for errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Class == t.Class && e.Code == t.Code
}

// WithTask adds task context to an error.
func (e *Error) WithTask(id string) *Error {
	e.Task = id
	return e
}

// WithCode adds an error code to an error.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// WithCycle records the cycle path on a circular-dependency error.
func (e *Error) WithCycle(cycle []string) *Error {
	e.Cycle = cycle
	return e
}

// NewConfigurationError creates a new configuration-class error.
func NewConfigurationError(message string, err error) *Error {
	return &Error{Class: ErrorClassConfiguration, Message: message, Err: err}
}

// NewExecutionError creates a new execution-class error.
func NewExecutionError(message string, err error) *Error {
	return &Error{Class: ErrorClassExecution, Message: message, Err: err}
}

// NewTimeoutError creates a new timeout-class error.
func NewTimeoutError(message string, err error) *Error {
	return &Error{Class: ErrorClassTimeout, Message: message, Code: ErrCodeTimeout, Err: err}
}

// NewPreconditionError creates a new precondition-class error.
func NewPreconditionError(message string, err error) *Error {
	return &Error{Class: ErrorClassPrecondition, Message: message, Code: ErrCodePreconditionFailed, Err: err}
}

// IsConfiguration returns true if the error is configuration-class.
func IsConfiguration(err error) bool {
	return hasClass(err, ErrorClassConfiguration)
}

// IsTimeout returns true if the error is timeout-class.
func IsTimeout(err error) bool {
	return hasClass(err, ErrorClassTimeout)
}

// IsPrecondition returns true if the error is precondition-class.
func IsPrecondition(err error) bool {
	return hasClass(err, ErrorClassPrecondition)
}

// IsExecutionFailure returns true if the error represents a failed task
// attempt. Timeouts count as execution failures.
func IsExecutionFailure(err error) bool {
	return hasClass(err, ErrorClassExecution) || hasClass(err, ErrorClassTimeout)
}

func hasClass(err error, class ErrorClass) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// Common error codes.
const (
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeAlreadyExists      = "ALREADY_EXISTS"
	ErrCodeTimeout            = "TIMEOUT"
	ErrCodeStepFailed         = "STEP_FAILED"
	ErrCodeDependencyFailed   = "DEPENDENCY_FAILED"
	ErrCodePreconditionFailed = "PRECONDITION_FAILED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)
