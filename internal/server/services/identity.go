package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/logging"
	"github.com/dbelyaev/authcore/internal/server/config"
	"github.com/dbelyaev/authcore/internal/server/gateways"
	"github.com/dbelyaev/authcore/internal/server/models"
	"github.com/dbelyaev/authcore/internal/server/repositories/repomanager"
)

// IdentityService maps verified federated identities onto local accounts.
// An email that already exists with a different role is a hard conflict:
// the stored role never changes as a side effect of a login attempt.
type IdentityService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	verifier gateways.FederatedIdentityVerifier
	notifier gateways.NotificationGateway
	auth     *AuthService
	timeout  time.Duration
	logger   logging.Logger
}

func NewIdentityService(db *sql.DB, repos repomanager.RepositoryManager,
	verifier gateways.FederatedIdentityVerifier, notifier gateways.NotificationGateway,
	authSvc *AuthService, cfg *config.Config, logger logging.Logger) *IdentityService {
	return &IdentityService{
		db:       db,
		repos:    repos,
		verifier: verifier,
		notifier: notifier,
		auth:     authSvc,
		timeout:  cfg.ProviderTimeout,
		logger:   logger.With("service", "identity"),
	}
}

// ResolveFederatedIdentity finds or creates the account for a verified
// email requesting a role. The second return reports whether the account
// was created by this call. Accounts created here have no password and a
// pre-verified email. A role mismatch on an existing account fails
// ErrRoleConflict without touching the record.
func (s *IdentityService) ResolveFederatedIdentity(ctx context.Context, email string, requestedRole models.Role, displayName string) (*models.User, bool, error) {
	if !requestedRole.Valid() {
		return nil, false, fmt.Errorf("%w: unknown role %q", common.ErrorInternal, requestedRole)
	}
	email = common.NormalizeEmail(email)

	repo := s.repos.Users(s.db)
	user, err := repo.GetByEmail(ctx, email)
	switch {
	case err == nil:
		if !user.Active {
			return nil, false, common.ErrAccountDisabled
		}
		if user.Role != requestedRole {
			return nil, false, fmt.Errorf("%w: email already registered as %s",
				common.ErrRoleConflict, user.Role)
		}
		return user, false, nil

	case errors.Is(err, common.ErrorNotFound):
		user, err = repo.Create(ctx, &models.User{
			Email:         email,
			DisplayName:   displayName,
			Role:          requestedRole,
			Active:        true,
			EmailVerified: true,
		})
		if err != nil {
			return nil, false, fmt.Errorf("creating user: %w", err)
		}

		// Welcome mail is best-effort; the account exists either way.
		if err := s.notifier.SendWelcome(ctx, user.Email, user.DisplayName); err != nil {
			s.logger.Warn(ctx, "welcome mail failed", "user_id", user.ID, "error", err)
		}

		s.logger.Info(ctx, "federated account created", "user_id", user.ID, "role", user.Role)
		return user, true, nil

	default:
		return nil, false, fmt.Errorf("looking up user: %w", err)
	}
}

// LoginWithAssertion verifies a federated assertion, resolves the local
// account, and completes the login. A failed verification is plain
// ErrorUnauthorized; no detail about the assertion leaks to the caller.
func (s *IdentityService) LoginWithAssertion(ctx context.Context, assertion string, role models.Role, device models.DeviceInfo, ip string) (*LoginResult, error) {
	verifyCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	identity, err := s.verifier.Verify(verifyCtx, assertion)
	if err != nil {
		s.logger.Warn(ctx, "assertion rejected", "error", err)
		return nil, common.ErrorUnauthorized
	}
	if !identity.EmailVerified {
		// Accounts resolved here are created email-verified, so an
		// assertion whose provider has not verified the address cannot
		// be honored.
		s.logger.Warn(ctx, "assertion email not verified by provider")
		return nil, common.ErrorUnauthorized
	}

	user, _, err := s.ResolveFederatedIdentity(ctx, identity.Email, role, identity.DisplayName)
	if err != nil {
		return nil, err
	}

	return s.auth.CompleteLogin(ctx, user, device, ip, "federated")
}
