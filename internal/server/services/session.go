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
	"github.com/dbelyaev/authcore/internal/server/models"
	"github.com/dbelyaev/authcore/internal/server/repositories/repomanager"
)

// SessionService tracks one active session per (user, device). Revoking a
// session here does not revoke the refresh credential backing it; flows
// needing both (logout) revoke both; see AuthService.
type SessionService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

func NewSessionService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *SessionService {
	return &SessionService{
		db:     db,
		repos:  repos,
		logger: logger.With("service", "session"),
	}
}

// Upsert records a login on the device: an existing active session for
// (user, device) is updated in place, otherwise one is inserted. The trust
// flag is copied from the device's trust record at this moment, not
// referenced live. Runs in one transaction.
func (s *SessionService) Upsert(ctx context.Context, user *models.User, device models.DeviceInfo, credentialID, ip string) (*models.Session, error) {
	var result *models.Session

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := time.Now()

		trusted := false
		td, err := s.repos.TrustedDevices(tx).Get(ctx, user.ID, device.DeviceID)
		switch {
		case err == nil:
			trusted = td.Active
			if td.Active {
				td.LastUsedAt = now
				if err := s.repos.TrustedDevices(tx).Update(ctx, td); err != nil {
					return err
				}
			}
		case errors.Is(err, common.ErrorNotFound):
			// never trusted
		default:
			return err
		}

		sessRepo := s.repos.Sessions(tx)
		existing, err := sessRepo.GetActive(ctx, user.ID, device.DeviceID)
		switch {
		case err == nil:
			existing.Device = device
			existing.IP = ip
			existing.Trusted = trusted
			existing.CredentialID = credentialID
			existing.LastActivityAt = now
			if err := sessRepo.Update(ctx, existing); err != nil {
				return err
			}
			result = existing
		case errors.Is(err, common.ErrorNotFound):
			result, err = sessRepo.Insert(ctx, &models.Session{
				UserID:         user.ID,
				Device:         device,
				IP:             ip,
				Trusted:        trusted,
				Active:         true,
				CredentialID:   credentialID,
				LastActivityAt: now,
			})
			if err != nil {
				return err
			}
		default:
			return err
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("upserting session: %w", err)
	}

	return result, nil
}

// ListActive returns the user's active sessions, most recent activity
// first, marking the one matching the caller's device as current.
func (s *SessionService) ListActive(ctx context.Context, userID, currentDeviceID string) ([]*models.SessionView, error) {
	sessions, err := s.repos.Sessions(s.db).ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}

	views := make([]*models.SessionView, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, &models.SessionView{
			Session:   *sess,
			IsCurrent: sess.Device.DeviceID == currentDeviceID,
		})
	}
	return views, nil
}

// Revoke deactivates one of the caller's own sessions. A session that does
// not exist or belongs to someone else fails ErrNotAuthorized; missing
// rows are not distinguished, so session ids cannot be probed.
func (s *SessionService) Revoke(ctx context.Context, userID, sessionID string) error {
	repo := s.repos.Sessions(s.db)

	sess, err := repo.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrNotAuthorized
		}
		return fmt.Errorf("looking up session: %w", err)
	}
	if sess.UserID != userID {
		return common.ErrNotAuthorized
	}

	if err := repo.Deactivate(ctx, sessionID); err != nil {
		return fmt.Errorf("revoking session: %w", err)
	}
	return nil
}

// RevokeAllExcept deactivates every active session of the user except the
// one on the given device. Idempotent.
func (s *SessionService) RevokeAllExcept(ctx context.Context, userID, exceptDeviceID string) (int64, error) {
	n, err := s.repos.Sessions(s.db).DeactivateAllExcept(ctx, userID, exceptDeviceID)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}
	return n, nil
}

// RevokeAll deactivates every active session of the user. Idempotent.
func (s *SessionService) RevokeAll(ctx context.Context, userID string) (int64, error) {
	n, err := s.repos.Sessions(s.db).DeactivateAll(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("revoking sessions: %w", err)
	}
	return n, nil
}
