package client

import (
	"errors"
	"fmt"

	"github.com/rendis/flowdesk/pkg/schema"
)

// TransportError means no usable envelope came back: the request failed on
// the network, or the response was not JSON or not an envelope.
type TransportError struct {
	Method      string
	URL         string
	StatusCode  int
	ContentType string
	Err         error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
	}
	return fmt.Sprintf("%s %s: HTTP %d (%s): %v", e.Method, e.URL, e.StatusCode, e.ContentType, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// APIError is an error envelope returned by the backend.
type APIError struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Fields     map[string]string `json:"fields,omitempty"`
	RequestID  string            `json:"request_id,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("%s: %s (request %s)", e.Code, e.Message, e.RequestID)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Is matches a FlowdeskError target by code, so errors.Is(err,
// schema.NewError(schema.ErrCodeNotFound, "")) works on API errors too.
func (e *APIError) Is(target error) bool {
	var fe *schema.FlowdeskError
	if !errors.As(target, &fe) {
		return false
	}
	return fe.Code == localCode(e.Code)
}

// localCode maps backend error codes onto flowdesk codes.
func localCode(code string) string {
	switch code {
	case "UNAUTHORIZED":
		return schema.ErrCodeUnauthenticated
	case "BAD_REQUEST":
		return schema.ErrCodeValidation
	}
	return code
}

// FieldErrors returns the per-field reasons of a validation error, or nil.
func FieldErrors(err error) map[string]string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Fields
	}
	return nil
}

// IsUnauthenticated reports whether the backend rejected the session.
func IsUnauthenticated(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == "UNAUTHORIZED" || apiErr.StatusCode == 401
	}
	return schema.IsCode(err, schema.ErrCodeUnauthenticated)
}
