package domain

import (
	"errors"
	"fmt"
)

// ErrorCode classifies engine errors. Pre-execution codes
// (InvalidConfig, UnregisteredPrimitive, CycleDetected) short-circuit
// before any node runs; the rest are runtime outcomes.
type ErrorCode string

const (
	ErrCodeInvalidConfig          ErrorCode = "InvalidConfig"
	ErrCodeUnregisteredPrimitive  ErrorCode = "UnregisteredPrimitive"
	ErrCodeCycleDetected          ErrorCode = "CycleDetected"
	ErrCodeNodeExecutionFailed    ErrorCode = "NodeExecutionFailed"
	ErrCodeDurableEngineUnavailable ErrorCode = "DurableEngineUnavailable"
	ErrCodeCancelled              ErrorCode = "Cancelled"
	ErrCodeNotFound               ErrorCode = "NotFound"
)

// Error is a typed engine error. NodeID is set for node-scoped errors.
type Error struct {
	Code    ErrorCode
	Message string
	NodeID  string
	Cause   error
}

func (e *Error) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("%s: node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on error code so callers can branch with errors.Is against
// a bare-code sentinel.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewError builds a typed error without node scope.
func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// NewNodeError builds a typed error scoped to a node.
func NewNodeError(code ErrorCode, nodeID, format string, args ...interface{}) *Error {
	return &Error{Code: code, NodeID: nodeID, Message: fmt.Sprintf(format, args...)}
}

// WrapError attaches a cause to a typed error.
func WrapError(code ErrorCode, cause error, format string, args ...interface{}) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ErrorCodeOf extracts the code from err, or empty when err is not a
// typed engine error.
func ErrorCodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// IsPreExecution reports whether err rejects a graph before any node
// runs (validation-class failures).
func IsPreExecution(err error) bool {
	switch ErrorCodeOf(err) {
	case ErrCodeInvalidConfig, ErrCodeUnregisteredPrimitive, ErrCodeCycleDetected:
		return true
	}
	return false
}
