// Package session issues and verifies the signed user session tokens
// accepted by the admin API.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"github.com/ogulcanaydogan/pulse/internal/clock"
	"github.com/ogulcanaydogan/pulse/pkg/model"
)

// ErrNoSecret is returned when no signing secret is configured.
var ErrNoSecret = errors.New("session secret is not configured")

// Claims are the JWT claims of a session token. The subject is the user id.
type Claims struct {
	OrgID string `json:"oid"`
	jwt.RegisteredClaims
}

// Manager signs and verifies HS256 session tokens.
type Manager struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewManager creates a manager. A zero ttl defaults to 24 hours.
func NewManager(secret string, ttl time.Duration, clk clock.Clock) *Manager {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Manager{secret: []byte(secret), ttl: ttl, clock: clk}
}

// Issue returns a signed token for userID acting in orgID.
func (m *Manager) Issue(userID, orgID string) (string, error) {
	if len(m.secret) == 0 {
		return "", ErrNoSecret
	}
	if userID == "" || orgID == "" {
		return "", errors.New("user id and organization id are required")
	}
	now := m.clock.Now()
	claims := Claims{
		OrgID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Issuer:    "pulse",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return token, nil
}

// Parse verifies a token and returns its claims.
func (m *Manager) Parse(tokenString string) (*Claims, error) {
	if len(m.secret) == 0 {
		return nil, ErrNoSecret
	}
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse session token: %w", err)
	}
	if !token.Valid || claims.Subject == "" || claims.OrgID == "" {
		return nil, errors.New("parse session token: missing claims")
	}
	return &claims, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	return strings.TrimSpace(header[len(prefix):]), true
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	OrgID  string
	Email  string
	Role   model.Role
}

type contextKey struct{}

// WithIdentity stores the caller on the context.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the caller stored by WithIdentity.
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok && id.UserID != ""
}
