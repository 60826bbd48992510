package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rendis/flowdesk/internal/client"
	"github.com/rendis/flowdesk/internal/secrets"
	"github.com/rendis/flowdesk/pkg/schema"
)

// CredentialName is the vault entry holding the bearer token.
const CredentialName = "session_token"

// Authenticator exchanges credentials for a token; satisfied by client.Client.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*client.AuthResult, error)
}

// Manager owns the session lifecycle: it signs in, keeps the token in the
// vault and serves it to the API client. It is safe for concurrent use.
type Manager struct {
	vault  secrets.Vault
	logger *slog.Logger
	now    func() time.Time

	mu      sync.Mutex
	current *Session
}

// NewManager creates a manager over v. A nil logger uses slog.Default.
func NewManager(v secrets.Vault, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{vault: v, logger: logger, now: time.Now}
}

// Login signs in with auth and stores the returned token.
func (m *Manager) Login(ctx context.Context, auth Authenticator, email, password string) (*Session, error) {
	res, err := auth.Login(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return m.Adopt(ctx, res.Token)
}

// Adopt stores an existing token as the current session.
func (m *Manager) Adopt(ctx context.Context, token string) (*Session, error) {
	s, err := FromToken(token)
	if err != nil {
		return nil, err
	}
	if err := m.vault.Put(ctx, CredentialName, []byte(token)); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.logger.InfoContext(ctx, "signed in", slog.String("user_id", s.UserID), slog.String("role", string(s.Role)))
	return s, nil
}

// Current returns the stored session. Without one, or with an expired or
// unreadable token, it returns UNAUTHENTICATED.
func (m *Manager) Current(ctx context.Context) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current == nil {
		raw, err := m.vault.Get(ctx, CredentialName)
		if err != nil {
			if schema.IsCode(err, schema.ErrCodeNotFound) {
				return nil, schema.NewError(schema.ErrCodeUnauthenticated, "not signed in")
			}
			return nil, err
		}
		s, err := FromToken(string(raw))
		if err != nil {
			return nil, err
		}
		m.current = s
	}
	if m.current.Expired(m.now()) {
		return nil, schema.NewError(schema.ErrCodeUnauthenticated, "session expired").
			WithDetails(map[string]any{"expired_at": m.current.ExpiresAt})
	}
	return m.current, nil
}

// Logout forgets the session. Logging out twice is not an error.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.current = nil
	m.mu.Unlock()
	if err := m.vault.Delete(ctx, CredentialName); err != nil && !schema.IsCode(err, schema.ErrCodeNotFound) {
		return err
	}
	return nil
}

// Token returns the current bearer token, or "" when signed out, so the
// manager can be handed to client.WithTokenSource.
func (m *Manager) Token() string {
	s, err := m.Current(context.Background())
	if err != nil {
		return ""
	}
	return s.Token
}
