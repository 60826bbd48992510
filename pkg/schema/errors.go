package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeInvalidConnection = "INVALID_CONNECTION"
	ErrCodeReadOnly          = "READ_ONLY"
	ErrCodeSaveInProgress    = "SAVE_IN_PROGRESS"
	ErrCodeStore             = "STORE_ERROR"
	ErrCodeTransport         = "TRANSPORT_ERROR"
	ErrCodeUnauthenticated   = "UNAUTHENTICATED"
)

// FlowdeskError is the structured error type for all flowdesk operations.
type FlowdeskError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
	NodeID  string         `json:"node_id,omitempty"`
	Cause   error          `json:"-"`
}

func (e *FlowdeskError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("[%s] node %s: %s", e.Code, e.NodeID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowdeskError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowdeskError.
func NewError(code, message string) *FlowdeskError {
	return &FlowdeskError{Code: code, Message: message}
}

// NewErrorf creates a new FlowdeskError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowdeskError {
	return &FlowdeskError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithNode attaches a node ID to the error.
func (e *FlowdeskError) WithNode(nodeID string) *FlowdeskError {
	e.NodeID = nodeID
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowdeskError) WithCause(err error) *FlowdeskError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowdeskError) WithDetails(details map[string]any) *FlowdeskError {
	e.Details = details
	return e
}

// IsCode reports whether err is (or wraps) a FlowdeskError with the given code.
func IsCode(err error, code string) bool {
	var fe *FlowdeskError
	if errors.As(err, &fe) {
		return fe.Code == code
	}
	return false
}
