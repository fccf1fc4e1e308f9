// Package auth implements the single-admin login with opaque session tokens.
package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DefaultSessionTimeout is the idle timeout after which a session expires.
const DefaultSessionTimeout = 30 * time.Minute

// Manager authenticates the configured admin account and tracks active
// sessions in memory. Sessions renew on every validated request and expire
// after the idle timeout.
type Manager struct {
	username     string
	passwordHash []byte
	timeout      time.Duration

	mu       sync.Mutex
	sessions map[string]time.Time // token -> last activity
	now      func() time.Time
}

// NewManager hashes the plaintext admin password and returns a ready manager.
// The plaintext is never retained.
func NewManager(username, password string, timeout time.Duration) (*Manager, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("auth: admin username and password are required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to hash password: %v", err)
	}
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	return &Manager{
		username:     username,
		passwordHash: hash,
		timeout:      timeout,
		sessions:     make(map[string]time.Time),
		now:          time.Now,
	}, nil
}

// Login verifies the credentials and returns a new session token.
func (m *Manager) Login(username, password string) (string, error) {
	if username != m.username ||
		bcrypt.CompareHashAndPassword(m.passwordHash, []byte(password)) != nil {
		return "", fmt.Errorf("auth: invalid credentials")
	}

	token := uuid.New().String()
	m.mu.Lock()
	m.sessions[token] = m.now()
	m.mu.Unlock()
	return token, nil
}

// Logout invalidates a session token.
func (m *Manager) Logout(token string) {
	m.mu.Lock()
	delete(m.sessions, token)
	m.mu.Unlock()
}

// Validate reports whether the token belongs to a live session, renewing the
// session's activity timestamp when it does.
func (m *Manager) Validate(token string) bool {
	if token == "" {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	last, ok := m.sessions[token]
	if !ok {
		return false
	}
	if m.now().Sub(last) > m.timeout {
		delete(m.sessions, token)
		return false
	}
	m.sessions[token] = m.now()
	return true
}

// Username returns the name of the authenticated user for a valid token, or
// "" when the token is not valid. There is a single admin account, so the
// answer is the configured username.
func (m *Manager) Username(token string) string {
	if m.Validate(token) {
		return m.username
	}
	return ""
}

// Middleware returns a fiber handler that rejects requests without a live
// session. The token is read from the Authorization bearer header or the
// session cookie. The resolved username is stored in c.Locals("username").
func (m *Manager) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := TokenFromRequest(c)
		if !m.Validate(token) {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "Authentication required",
				"code":  "ERR_UNAUTHORIZED",
			})
		}
		c.Locals("username", m.username)
		return c.Next()
	}
}

// TokenFromRequest extracts the session token from a request.
func TokenFromRequest(c *fiber.Ctx) string {
	if h := c.Get(fiber.HeaderAuthorization); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Cookies("session")
}
