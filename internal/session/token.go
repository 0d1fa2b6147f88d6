package session

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/storefront/internal/domain"
	apperrors "github.com/utafrali/storefront/pkg/errors"
)

const tokenIssuer = "storefront"

// Claims are carried by a session token. The principal fields are empty for
// an anonymous session.
type Claims struct {
	SessionID string `json:"sid"`
	UserID    string `json:"user_id,omitempty"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Principal returns the signed-in principal recorded in the token.
func (c *Claims) Principal() (domain.Principal, bool) {
	if c.UserID == "" {
		return domain.Principal{}, false
	}
	role, ok := domain.ParseRole(c.Role)
	if !ok {
		role = domain.RoleCustomer
	}
	return domain.Principal{UserID: c.UserID, Username: c.Username, Role: role}, true
}

// Remaining is how long the token stays valid after now.
func (c *Claims) Remaining(now time.Time) time.Duration {
	if c.ExpiresAt == nil {
		return 0
	}
	return max(c.ExpiresAt.Sub(now), 0)
}

// TokenManager signs and verifies session tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenManager creates a token manager signing with secret. Tokens expire
// ttl after issue.
func NewTokenManager(secret string, ttl time.Duration) *TokenManager {
	return &TokenManager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue signs a token for session sid. A nil principal issues an anonymous
// token.
func (m *TokenManager) Issue(sid string, p *domain.Principal) (string, *Claims, error) {
	now := m.now()
	claims := &Claims{
		SessionID: sid,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Issuer:    tokenIssuer,
		},
	}
	if p != nil {
		claims.UserID = p.UserID
		claims.Username = p.Username
		claims.Role = string(p.Role)
		claims.Subject = p.UserID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, apperrors.Wrap(err, "sign session token")
	}
	return signed, claims, nil
}

// Parse verifies a token and returns its claims.
func (m *TokenManager) Parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	},
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "parse session token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.SessionID == "" || claims.ID == "" {
		return nil, fmt.Errorf("invalid session token claims")
	}
	return claims, nil
}
