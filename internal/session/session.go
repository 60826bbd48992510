// Package session decodes the backend's bearer token and keeps it between
// runs. Claims are read without verifying the signature: they only drive
// which controls are shown, and the backend checks every request.
package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/rendis/flowdesk/pkg/schema"
)

// Claims is the payload the backend signs into its tokens.
type Claims struct {
	Email string      `json:"email"`
	Role  schema.Role `json:"role"`
	jwt.RegisteredClaims
}

// Session is the signed-in user as the token describes them.
type Session struct {
	UserID    string      `json:"user_id"`
	Email     string      `json:"email"`
	Role      schema.Role `json:"role"`
	Token     string      `json:"-"`
	ExpiresAt time.Time   `json:"expires_at,omitzero"`
}

// FromToken decodes a token's claims. A token that is not a JWT or has no
// subject is UNAUTHENTICATED.
func FromToken(token string) (*Session, error) {
	var claims Claims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil, schema.NewError(schema.ErrCodeUnauthenticated, "token is not a readable JWT").WithCause(err)
	}
	if claims.Subject == "" {
		return nil, schema.NewError(schema.ErrCodeUnauthenticated, "token has no subject")
	}
	s := &Session{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
		Token:  token,
	}
	if claims.ExpiresAt != nil {
		s.ExpiresAt = claims.ExpiresAt.Time
	}
	return s, nil
}

// Expired reports whether the token's exp claim has passed. Tokens without
// exp never expire locally.
func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == schema.RoleAdmin
}

// Owns reports whether the session user owns the flow.
func (s *Session) Owns(f schema.Flow) bool {
	return s != nil && s.UserID != "" && s.UserID == f.OwnerID
}
