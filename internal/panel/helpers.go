package panel

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rendis/flowdesk/internal/client"
	"github.com/rendis/flowdesk/pkg/schema"
)

// toJSON marshals a value to indented JSON for template rendering.
func toJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// timeAgo returns a human-readable relative time string.
func timeAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// statusBadge returns a CSS class name for a flow status.
func statusBadge(status schema.FlowStatus) string {
	switch status {
	case schema.FlowStatusDraft:
		return "badge-secondary"
	case schema.FlowStatusInReview:
		return "badge-warning"
	case schema.FlowStatusEffective:
		return "badge-success"
	default:
		return "badge-muted"
	}
}

// truncate shortens a string to max runes, appending "..." if truncated.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "..."
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	NodeID  string            `json:"node_id,omitempty"`
	Fields  map[string]string `json:"fields,omitempty"`
	Details map[string]any    `json:"details,omitempty"`
}

// writeError writes a JSON error response for a plain message.
func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]apiError{"error": {Code: code, Message: msg}})
}

// writeErr maps err onto an HTTP status and writes it.
func writeErr(w http.ResponseWriter, err error) {
	body := apiError{Code: schema.ErrCodeStore, Message: err.Error()}
	var fe *schema.FlowdeskError
	var ae *client.APIError
	switch {
	case errors.As(err, &ae):
		body.Code = ae.Code
		body.Message = ae.Message
		body.Fields = ae.Fields
	case errors.As(err, &fe):
		body.Code = fe.Code
		body.Message = fe.Message
		body.NodeID = fe.NodeID
		body.Details = fe.Details
		if fields, ok := fe.Details["fields"].(map[string]string); ok {
			body.Fields = fields
			body.Details = nil
		}
	default:
		var te *client.TransportError
		if errors.As(err, &te) {
			body.Code = schema.ErrCodeTransport
		}
	}
	writeJSON(w, statusFor(err), map[string]apiError{"error": body})
}

func statusFor(err error) int {
	var te *client.TransportError
	if errors.As(err, &te) {
		return http.StatusBadGateway
	}
	var ae *client.APIError
	if errors.As(err, &ae) && ae.StatusCode >= 400 {
		return ae.StatusCode
	}
	var fe *schema.FlowdeskError
	if !errors.As(err, &fe) {
		return http.StatusInternalServerError
	}
	switch fe.Code {
	case schema.ErrCodeValidation, schema.ErrCodeInvalidConnection:
		return http.StatusUnprocessableEntity
	case schema.ErrCodeNotFound:
		return http.StatusNotFound
	case schema.ErrCodeConflict, schema.ErrCodeInvalidTransition, schema.ErrCodeSaveInProgress:
		return http.StatusConflict
	case schema.ErrCodeReadOnly:
		return http.StatusForbidden
	case schema.ErrCodeUnauthenticated:
		return http.StatusUnauthorized
	case schema.ErrCodeTransport:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// decodeJSON reads a JSON request body into v.
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return schema.NewErrorf(schema.ErrCodeValidation, "invalid JSON: %v", err).WithCause(err)
	}
	return nil
}
