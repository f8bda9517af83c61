package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/password"
	"github.com/dbelyaev/authcore/internal/server/auth"
	"github.com/dbelyaev/authcore/internal/server/config"
	"github.com/dbelyaev/authcore/internal/server/models"
)

func testHasher(t *testing.T) *password.Hasher {
	t.Helper()
	h, err := password.NewHasher(password.Params{
		Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 16,
	})
	require.NoError(t, err)
	return h
}

func newAuthService(t *testing.T, store *fakeStore) *AuthService {
	t.Helper()
	db := testDB(t)
	repos := &fakeRepoManager{store}
	cfg := &config.Config{}
	cfg.LoadDefaults()
	logger := testLogger()
	m := testMetrics()

	tokens, err := auth.NewManager([]byte("0123456789abcdef0123456789abcdef"), "authcore-test", 15*time.Minute)
	require.NoError(t, err)

	refresh := NewRefreshService(db, repos, cfg, logger, m)
	sessions := NewSessionService(db, repos, logger)
	return NewAuthService(db, repos, tokens, refresh, sessions, testHasher(t), logger, m)
}

func TestAuthService_RegisterAndLogin(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "Alice@Example.com", "s3cret-pass", "Alice", models.RoleCustomer)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", user.Email)
	require.NotNil(t, user.PasswordHash)

	res, err := svc.LoginWithPassword(ctx, "alice@example.com", "s3cret-pass", testDevice, "10.0.0.1")
	require.NoError(t, err)
	assert.NotEmpty(t, res.Tokens.AccessToken)
	assert.NotEmpty(t, res.Tokens.RefreshToken)
	assert.Equal(t, user.ID, res.Session.UserID)
	assert.NotNil(t, store.users[user.ID].LastLoginAt)
}

func TestAuthService_RegisterDuplicateEmail(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "s3cret-pass", "Alice", models.RoleCustomer)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "ALICE@example.com", "other-pass", "Imposter", models.RoleStaff)
	assert.ErrorIs(t, err, common.ErrEmailTaken)
}

func TestAuthService_LoginWrongPassword(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "s3cret-pass", "Alice", models.RoleCustomer)
	require.NoError(t, err)

	_, err = svc.LoginWithPassword(ctx, "alice@example.com", "wrong", testDevice, "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuthService_LoginUnknownEmail(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)

	_, err := svc.LoginWithPassword(context.Background(), "ghost@example.com", "whatever", testDevice, "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestAuthService_LoginDisabledAccount(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "s3cret-pass", "Alice", models.RoleCustomer)
	require.NoError(t, err)
	store.users[user.ID].Active = false

	_, err = svc.LoginWithPassword(ctx, "alice@example.com", "s3cret-pass", testDevice, "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrAccountDisabled)
}

func TestAuthService_LoginPasswordlessAccount(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)

	// Federated accounts have no hash; password login must say so rather
	// than report a generic failure.
	user := addUser(store, true)
	_, err := svc.LoginWithPassword(context.Background(), user.Email, "anything", testDevice, "10.0.0.1")
	assert.ErrorIs(t, err, common.ErrPasswordNotSet)
}

func TestAuthService_ExchangeRefreshToken(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice@example.com", "s3cret-pass", "Alice", models.RoleCustomer)
	require.NoError(t, err)
	res, err := svc.LoginWithPassword(ctx, "alice@example.com", "s3cret-pass", testDevice, "10.0.0.1")
	require.NoError(t, err)

	pair, err := svc.ExchangeRefreshToken(ctx, res.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, res.Tokens.RefreshToken, pair.RefreshToken)
	assert.NotEmpty(t, pair.AccessToken)

	// The consumed token is spent.
	_, err = svc.ExchangeRefreshToken(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidCredential)
}

func TestAuthService_Logout(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "s3cret-pass", "Alice", models.RoleCustomer)
	require.NoError(t, err)
	res, err := svc.LoginWithPassword(ctx, "alice@example.com", "s3cret-pass", testDevice, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, user.ID, res.Tokens.RefreshToken, testDevice.DeviceID))
	assert.False(t, store.sessions[res.Session.ID].Active)
	_, err = svc.ExchangeRefreshToken(ctx, res.Tokens.RefreshToken)
	assert.ErrorIs(t, err, common.ErrInvalidCredential)

	// Logging out again is harmless.
	require.NoError(t, svc.Logout(ctx, user.ID, res.Tokens.RefreshToken, testDevice.DeviceID))
}

func TestAuthService_LogoutAllDevices(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "s3cret-pass", "Alice", models.RoleCustomer)
	require.NoError(t, err)

	_, err = svc.LoginWithPassword(ctx, "alice@example.com", "s3cret-pass", testDevice, "10.0.0.1")
	require.NoError(t, err)
	laptop := testDevice
	laptop.DeviceID = "dev-2"
	_, err = svc.LoginWithPassword(ctx, "alice@example.com", "s3cret-pass", laptop, "10.0.0.2")
	require.NoError(t, err)

	require.NoError(t, svc.LogoutAllDevices(ctx, user.ID))

	n, err := store.credCountActive(user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	for _, sess := range store.sessions {
		assert.False(t, sess.Active)
	}
}

func TestAuthService_DisableCascades(t *testing.T) {
	store := newFakeStore()
	svc := newAuthService(t, store)
	ctx := context.Background()

	user, err := svc.Register(ctx, "alice@example.com", "s3cret-pass", "Alice", models.RoleCustomer)
	require.NoError(t, err)
	res, err := svc.LoginWithPassword(ctx, "alice@example.com", "s3cret-pass", testDevice, "10.0.0.1")
	require.NoError(t, err)

	require.NoError(t, svc.SetUserActive(ctx, user.ID, false))

	assert.False(t, store.users[user.ID].Active)
	assert.False(t, store.sessions[res.Session.ID].Active)
	n, err := store.credCountActive(user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	// Re-enable restores nothing, only permits fresh logins.
	require.NoError(t, svc.SetUserActive(ctx, user.ID, true))
	n, err = store.credCountActive(user.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = svc.LoginWithPassword(ctx, "alice@example.com", "s3cret-pass", testDevice, "10.0.0.1")
	assert.NoError(t, err)
}
