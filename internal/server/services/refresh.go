package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/dbx"
	"github.com/dbelyaev/authcore/internal/logging"
	"github.com/dbelyaev/authcore/internal/server/config"
	"github.com/dbelyaev/authcore/internal/server/metrics"
	"github.com/dbelyaev/authcore/internal/server/models"
	"github.com/dbelyaev/authcore/internal/server/repositories/repomanager"
)

// refreshTokenBytes of entropy per opaque token; encoded as hex, so the
// token string is twice as long.
const refreshTokenBytes = 32

// RefreshService owns the lifecycle of refresh credentials: issuance,
// one-shot rotation, and revocation.
type RefreshService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	validity time.Duration
	logger   logging.Logger
	metrics  *metrics.Metrics
}

func NewRefreshService(db *sql.DB, repos repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger, m *metrics.Metrics) *RefreshService {
	return &RefreshService{
		db:       db,
		repos:    repos,
		validity: cfg.RefreshTokenValidityDuration,
		logger:   logger.With("service", "refresh"),
		metrics:  m,
	}
}

// Issue creates and persists a fresh credential for the user.
func (s *RefreshService) Issue(ctx context.Context, userID string) (*models.RefreshCredential, error) {
	token, err := common.MakeRandHexString(refreshTokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating refresh token: %w", err)
	}

	cred, err := s.repos.Credentials(s.db).Create(ctx, userID, token, time.Now().Add(s.validity))
	if err != nil {
		return nil, fmt.Errorf("storing refresh credential: %w", err)
	}
	return cred, nil
}

// Rotate exchanges a usable credential for a fresh one, consuming the old
// one. The revoke-old/issue-new pair runs in a single transaction and the
// revoke is guarded by its rows-affected count, so of two concurrent
// callers presenting the same token exactly one wins; the loser observes
// ErrInvalidCredential.
//
// Presenting a credential owned by a disabled user revokes all of that
// user's credentials before failing with ErrAccountDisabled.
func (s *RefreshService) Rotate(ctx context.Context, token string) (*models.RefreshCredential, error) {
	repo := s.repos.Credentials(s.db)

	cred, err := repo.FindActive(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.Rotations.WithLabelValues("rejected").Inc()
			return nil, common.ErrInvalidCredential
		}
		return nil, fmt.Errorf("looking up refresh credential: %w", err)
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, cred.UserID)
	if err != nil {
		return nil, fmt.Errorf("looking up credential owner: %w", err)
	}

	if !user.Active {
		// Self-healing cleanup: a disabled user's credentials must never
		// rotate again, even ones not presented here.
		if _, err := repo.RevokeAllForUser(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("revoking credentials of disabled user: %w", err)
		}
		s.logger.Warn(ctx, "rotation attempt by disabled account", "user_id", user.ID)
		s.metrics.Rotations.WithLabelValues("disabled").Inc()
		return nil, common.ErrAccountDisabled
	}

	var fresh *models.RefreshCredential
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		txRepo := s.repos.Credentials(tx)

		revoked, err := txRepo.Revoke(ctx, cred.Token)
		if err != nil {
			return err
		}
		if !revoked {
			// A concurrent rotation consumed the credential first.
			return common.ErrInvalidCredential
		}

		newToken, err := common.MakeRandHexString(refreshTokenBytes)
		if err != nil {
			return err
		}
		fresh, err = txRepo.Create(ctx, user.ID, newToken, time.Now().Add(s.validity))
		if err != nil {
			return err
		}

		// Keep any session backed by the old credential pointing at the
		// new one.
		return s.repos.Sessions(tx).ReplaceCredential(ctx, cred.ID, fresh.ID)
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidCredential) {
			s.metrics.Rotations.WithLabelValues("rejected").Inc()
			return nil, common.ErrInvalidCredential
		}
		return nil, fmt.Errorf("rotating refresh credential: %w", err)
	}

	s.metrics.Rotations.WithLabelValues("ok").Inc()
	return fresh, nil
}

// Revoke flags the credential if it is not already revoked and reports
// whether anything changed. Idempotent.
func (s *RefreshService) Revoke(ctx context.Context, token string) (bool, error) {
	changed, err := s.repos.Credentials(s.db).Revoke(ctx, token)
	if err != nil {
		return false, fmt.Errorf("revoking refresh credential: %w", err)
	}
	return changed, nil
}

// RevokeAllForUser flags every active credential the user holds. Used on
// password reset, account disablement, and other security-sensitive
// events.
func (s *RefreshService) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	n, err := s.repos.Credentials(s.db).RevokeAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking user credentials: %w", err)
	}
	if n > 0 {
		s.logger.Info(ctx, "revoked refresh credentials", "user_id", userID, "count", n)
	}
	return n, nil
}
