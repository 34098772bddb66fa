// Package auth guards the manual control endpoints. Supervisor accounts are
// static config entries with bcrypt password hashes; a successful login
// yields a short-lived HS256 JWT.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/safesite-labs/ppe-gate-monitor/internal/config"
)

// ErrInvalidCredentials is returned for an unknown user or wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Manager issues and verifies supervisor tokens.
type Manager struct {
	secret      []byte
	ttl         time.Duration
	supervisors map[string]string // username -> bcrypt hash
}

// NewManager builds a manager from the auth config. The JWT secret must be
// set whenever supervisor accounts exist.
func NewManager(cfg config.AuthConfig) (*Manager, error) {
	if len(cfg.Supervisors) > 0 && cfg.JWTSecret == "" {
		return nil, errors.New("auth: jwt secret required when supervisors are configured")
	}
	ttl := cfg.TokenTTL.Std()
	if ttl <= 0 {
		ttl = 8 * time.Hour
	}

	supervisors := make(map[string]string, len(cfg.Supervisors))
	for _, s := range cfg.Supervisors {
		supervisors[s.Username] = s.PasswordHash
	}

	return &Manager{
		secret:      []byte(cfg.JWTSecret),
		ttl:         ttl,
		supervisors: supervisors,
	}, nil
}

// Enabled reports whether any supervisor accounts are configured. With none,
// the control endpoints are left open (single-operator bench setups).
func (m *Manager) Enabled() bool {
	return len(m.supervisors) > 0
}

// Login checks the credentials and returns a signed token.
func (m *Manager) Login(username, password string) (string, error) {
	hash, ok := m.supervisors[username]
	if !ok {
		// Burn a comparison anyway so unknown users cost the same.
		_ = bcrypt.CompareHashAndPassword([]byte("$2a$10$0000000000000000000000000000000000000000000000000000"), []byte(password))
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": username,
		"iat": now.Unix(),
		"exp": now.Add(m.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify parses the token and returns the supervisor username.
func (m *Manager) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidCredentials
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidCredentials
	}
	sub, _ := claims["sub"].(string)
	if sub == "" {
		return "", ErrInvalidCredentials
	}
	return sub, nil
}

type contextKey struct{}

// UserFromContext returns the supervisor name stored by RequireAuth, or ""
// when auth is disabled.
func UserFromContext(ctx context.Context) string {
	user, _ := ctx.Value(contextKey{}).(string)
	return user
}

// RequireAuth is middleware for the control endpoints. When no supervisors
// are configured it passes requests through. On success the supervisor name
// is stored in the request context.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.Enabled() {
			next.ServeHTTP(w, r)
			return
		}

		header := r.Header.Get("Authorization")
		tokenString, found := strings.CutPrefix(header, "Bearer ")
		if !found || tokenString == "" {
			http.Error(w, "Authorization required", http.StatusUnauthorized)
			return
		}
		user, err := m.Verify(tokenString)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), contextKey{}, user)))
	})
}
