package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/logging"
	"github.com/dbelyaev/authcore/internal/password"
	"github.com/dbelyaev/authcore/internal/server/auth"
	"github.com/dbelyaev/authcore/internal/server/metrics"
	"github.com/dbelyaev/authcore/internal/server/models"
	"github.com/dbelyaev/authcore/internal/server/repositories/repomanager"
)

// AuthService is the entry point for registration, password login, token
// exchange and logout. Every login method (password, otp, federated) ends
// in CompleteLogin, which produces the token pair and registers the
// session.
type AuthService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	tokens   *auth.Manager
	refresh  *RefreshService
	sessions *SessionService
	hasher   *password.Hasher
	logger   logging.Logger
	metrics  *metrics.Metrics
}

func NewAuthService(db *sql.DB, repos repomanager.RepositoryManager, tokens *auth.Manager,
	refresh *RefreshService, sessions *SessionService, hasher *password.Hasher,
	logger logging.Logger, m *metrics.Metrics) *AuthService {
	return &AuthService{
		db:       db,
		repos:    repos,
		tokens:   tokens,
		refresh:  refresh,
		sessions: sessions,
		hasher:   hasher,
		logger:   logger.With("service", "auth"),
		metrics:  m,
	}
}

// Register creates a password-backed account. The email is taken as-is
// after normalization; duplicates fail with ErrEmailTaken.
func (s *AuthService) Register(ctx context.Context, email, pass, displayName string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", common.ErrorInternal, role)
	}

	email = common.NormalizeEmail(email)
	repo := s.repos.Users(s.db)

	if _, err := repo.GetByEmail(ctx, email); err == nil {
		return nil, common.ErrEmailTaken
	} else if !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("checking email: %w", err)
	}

	hash, err := s.hasher.Hash(pass)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user, err := repo.Create(ctx, &models.User{
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: &hash,
		Role:         role,
		Active:       true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info(ctx, "user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// LoginWithPassword authenticates by email and password and completes the
// login. Unknown emails and wrong passwords both report ErrorUnauthorized;
// only accounts that actually exist can reveal being disabled or
// passwordless.
func (s *AuthService) LoginWithPassword(ctx context.Context, email, pass string, device models.DeviceInfo, ip string) (*LoginResult, error) {
	user, err := s.repos.Users(s.db).GetByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	if !user.Active {
		return nil, common.ErrAccountDisabled
	}
	if user.PasswordHash == nil {
		return nil, common.ErrPasswordNotSet
	}

	ok, err := s.hasher.Verify(*user.PasswordHash, pass)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.logger.Warn(ctx, "password mismatch", "user_id", user.ID)
		return nil, common.ErrorUnauthorized
	}

	return s.CompleteLogin(ctx, user, device, ip, "password")
}

// CompleteLogin is the shared tail of every login method: it stamps the
// last-login time, issues the refresh credential and access token, and
// upserts the device session bound to the fresh credential.
func (s *AuthService) CompleteLogin(ctx context.Context, user *models.User, device models.DeviceInfo, ip, method string) (*LoginResult, error) {
	if err := s.repos.Users(s.db).UpdateLastLogin(ctx, user.ID, time.Now()); err != nil {
		return nil, fmt.Errorf("stamping last login: %w", err)
	}

	cred, err := s.refresh.Issue(ctx, user.ID)
	if err != nil {
		return nil, err
	}

	access, _, expiresAt, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	session, err := s.sessions.Upsert(ctx, user, device, cred.ID, ip)
	if err != nil {
		return nil, err
	}

	s.metrics.Logins.WithLabelValues(method).Inc()
	s.logger.Info(ctx, "login completed",
		"user_id", user.ID, "method", method, "device_id", device.DeviceID)

	return &LoginResult{
		User: user,
		Tokens: TokenPair{
			AccessToken:     access,
			RefreshToken:    cred.Token,
			AccessExpiresAt: expiresAt,
		},
		Session: session,
	}, nil
}

// ExchangeRefreshToken rotates the presented refresh credential and mints
// a new access token for its owner.
func (s *AuthService) ExchangeRefreshToken(ctx context.Context, token string) (*TokenPair, error) {
	fresh, err := s.refresh.Rotate(ctx, token)
	if err != nil {
		return nil, err
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, fresh.UserID)
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}

	access, _, expiresAt, err := s.tokens.IssueAccessToken(user)
	if err != nil {
		return nil, fmt.Errorf("issuing access token: %w", err)
	}

	return &TokenPair{
		AccessToken:     access,
		RefreshToken:    fresh.Token,
		AccessExpiresAt: expiresAt,
	}, nil
}

// Logout revokes the presented refresh credential and deactivates the
// device's session. Both steps are idempotent; logging out twice is not
// an error.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken, deviceID string) error {
	if _, err := s.refresh.Revoke(ctx, refreshToken); err != nil {
		return err
	}

	sess, err := s.repos.Sessions(s.db).GetActive(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return fmt.Errorf("looking up session: %w", err)
	}
	if err := s.repos.Sessions(s.db).Deactivate(ctx, sess.ID); err != nil {
		return fmt.Errorf("deactivating session: %w", err)
	}

	s.logger.Info(ctx, "logged out", "user_id", userID, "device_id", deviceID)
	return nil
}

// LogoutAllDevices revokes every refresh credential and deactivates every
// session the user has.
func (s *AuthService) LogoutAllDevices(ctx context.Context, userID string) error {
	if _, err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
		return err
	}
	if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
		return err
	}

	s.logger.Info(ctx, "logged out everywhere", "user_id", userID)
	return nil
}

// SetUserActive enables or disables an account. Disabling cascades:
// every refresh credential is revoked and every session deactivated, so
// the account cannot mint new access tokens once the current ones expire.
func (s *AuthService) SetUserActive(ctx context.Context, userID string, active bool) error {
	if err := s.repos.Users(s.db).SetActive(ctx, userID, active); err != nil {
		return fmt.Errorf("updating account state: %w", err)
	}

	if !active {
		if _, err := s.refresh.RevokeAllForUser(ctx, userID); err != nil {
			return err
		}
		if _, err := s.sessions.RevokeAll(ctx, userID); err != nil {
			return err
		}
	}

	s.logger.Info(ctx, "account state changed", "user_id", userID, "active", active)
	return nil
}
