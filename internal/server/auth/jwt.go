// Package auth mints and validates the short-lived signed access tokens.
// The manager is stateless; every method is safe for concurrent use.
package auth

import (
	"errors"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenTypeAccess is the only token_type this manager issues or accepts.
// Refresh credentials are opaque strings, never JWTs; rejecting other types
// here defends against a refresh-style token replayed as an access token.
const TokenTypeAccess = "ACCESS"

// Claims is the fixed claim set carried by every access token. Subject is
// the user's email.
type Claims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	Role      string `json:"role"`
	TokenType string `json:"token_type"`
}

// TokenInfo is the introspection answer handed to collaborating services
// that do not hold the signing key. Valid=false zeroes the other fields.
type TokenInfo struct {
	Valid     bool        `json:"valid"`
	UserID    string      `json:"user_id,omitempty"`
	Email     string      `json:"email,omitempty"`
	Role      models.Role `json:"role,omitempty"`
	TokenType string      `json:"token_type,omitempty"`
	IssuedAt  time.Time   `json:"issued_at,omitzero"`
	ExpiresAt time.Time   `json:"expires_at,omitzero"`
}

// Manager signs and verifies access tokens with an HS256 secret.
type Manager struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewManager fails on an empty secret so a misconfigured signing key stops
// the process at startup rather than per request.
func NewManager(secret []byte, issuer string, ttl time.Duration) (*Manager, error) {
	if len(secret) == 0 {
		return nil, errors.New("signing secret is empty")
	}
	if issuer == "" {
		return nil, errors.New("token issuer is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("access token validity must be positive")
	}
	return &Manager{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// IssueAccessToken mints a signed token for the user and returns it with
// its issue and expiry instants.
func (m *Manager) IssueAccessToken(user *models.User) (string, time.Time, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(m.ttl)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.Email,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		UserID:    user.ID,
		Role:      string(user.Role),
		TokenType: TokenTypeAccess,
	})

	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, time.Time{}, err
	}

	return signed, now, expiresAt, nil
}

// Validate verifies signature, issuer, and expiry, and rejects any token
// whose token_type is not ACCESS.
func (m *Manager) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims,
		func(t *jwt.Token) (interface{}, error) { return m.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(m.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, common.ErrorUnauthorized
	}
	if !token.Valid || claims.TokenType != TokenTypeAccess {
		return nil, common.ErrorUnauthorized
	}

	return claims, nil
}

// Introspect answers the token-validation contract: any failure collapses
// to Valid=false rather than an error.
func (m *Manager) Introspect(tokenString string) TokenInfo {
	claims, err := m.Validate(tokenString)
	if err != nil {
		return TokenInfo{}
	}

	info := TokenInfo{
		Valid:     true,
		UserID:    claims.UserID,
		Email:     claims.Subject,
		Role:      models.Role(claims.Role),
		TokenType: claims.TokenType,
	}
	if claims.IssuedAt != nil {
		info.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		info.ExpiresAt = claims.ExpiresAt.Time
	}
	return info
}
