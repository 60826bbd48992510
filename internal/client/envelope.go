package client

import (
	"encoding/json"
	"time"

	"github.com/rendis/flowdesk/pkg/schema"
)

// envelope is the response body of every backend endpoint.
type envelope struct {
	Data      json.RawMessage `json:"data,omitempty"`
	Error     *APIError       `json:"error,omitempty"`
	RequestID string          `json:"request_id"`
}

// User is the account returned on login.
type User struct {
	ID        string      `json:"id"`
	Email     string      `json:"email"`
	Role      schema.Role `json:"role"`
	CreatedAt time.Time   `json:"created_at"`
}

// AuthResult is the body of a successful POST /auth/login.
type AuthResult struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
