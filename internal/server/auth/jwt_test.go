package auth

import (
	"testing"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testUser = &models.User{
	ID:    "u-42",
	Email: "alice@x.com",
	Role:  models.RoleCustomer,
}

func newManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager([]byte("test-secret"), "authcore", time.Minute)
	require.NoError(t, err)
	return m
}

func TestNewManager_ConfigValidation(t *testing.T) {
	_, err := NewManager(nil, "authcore", time.Minute)
	require.Error(t, err, "empty secret must fail fast")

	_, err = NewManager([]byte("k"), "", time.Minute)
	require.Error(t, err, "empty issuer must fail fast")

	_, err = NewManager([]byte("k"), "authcore", 0)
	require.Error(t, err, "zero ttl must fail fast")
}

func TestIssueAndValidate(t *testing.T) {
	m := newManager(t)

	signed, issuedAt, expiresAt, err := m.IssueAccessToken(testUser)
	require.NoError(t, err)
	require.True(t, expiresAt.After(issuedAt))

	claims, err := m.Validate(signed)
	require.NoError(t, err)
	require.Equal(t, "u-42", claims.UserID)
	require.Equal(t, "alice@x.com", claims.Subject)
	require.Equal(t, "CUSTOMER", claims.Role)
	require.Equal(t, TokenTypeAccess, claims.TokenType)
}

func TestValidate_RejectsWrongSecret(t *testing.T) {
	m := newManager(t)
	other, err := NewManager([]byte("other-secret"), "authcore", time.Minute)
	require.NoError(t, err)

	signed, _, _, err := other.IssueAccessToken(testUser)
	require.NoError(t, err)

	_, err = m.Validate(signed)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestValidate_RejectsWrongIssuer(t *testing.T) {
	m := newManager(t)
	other, err := NewManager([]byte("test-secret"), "someone-else", time.Minute)
	require.NoError(t, err)

	signed, _, _, err := other.IssueAccessToken(testUser)
	require.NoError(t, err)

	_, err = m.Validate(signed)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestValidate_RejectsExpired(t *testing.T) {
	m := newManager(t)
	// Sign an already-expired token with the same secret.
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testUser.Email,
			Issuer:    "authcore",
			IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Minute)),
			ExpiresAt: jwt.NewNumericDate(now.Add(-time.Minute)),
		},
		UserID:    testUser.ID,
		Role:      string(testUser.Role),
		TokenType: TokenTypeAccess,
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Validate(signed)
	require.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestValidate_RejectsNonAccessTokenType(t *testing.T) {
	m := newManager(t)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   testUser.Email,
			Issuer:    "authcore",
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
		UserID:    testUser.ID,
		Role:      string(testUser.Role),
		TokenType: "REFRESH",
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	_, err = m.Validate(signed)
	require.ErrorIs(t, err, common.ErrorUnauthorized, "refresh-style token must not pass as access token")
}

func TestIntrospect(t *testing.T) {
	m := newManager(t)

	signed, _, _, err := m.IssueAccessToken(testUser)
	require.NoError(t, err)

	info := m.Introspect(signed)
	require.True(t, info.Valid)
	require.Equal(t, "u-42", info.UserID)
	require.Equal(t, models.RoleCustomer, info.Role)
	require.False(t, info.ExpiresAt.IsZero())

	require.Equal(t, TokenInfo{}, m.Introspect("garbage"), "invalid token collapses to Valid=false")
}
