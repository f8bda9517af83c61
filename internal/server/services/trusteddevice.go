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

// TrustedDeviceService maintains per-user device trust records. A record
// keeps its original TrustedAt across untrust/re-trust cycles; only the
// Active flag flips. Trust changes are mirrored onto the active session
// for the device in the same transaction.
type TrustedDeviceService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	logger logging.Logger
}

func NewTrustedDeviceService(db *sql.DB, repos repomanager.RepositoryManager, logger logging.Logger) *TrustedDeviceService {
	return &TrustedDeviceService{
		db:     db,
		repos:  repos,
		logger: logger.With("service", "trusteddevice"),
	}
}

// Trust marks the device trusted for the user. An existing record, active
// or not, is reactivated in place with refreshed metadata; otherwise a new
// one is created with TrustedAt set now.
func (s *TrustedDeviceService) Trust(ctx context.Context, userID string, device models.DeviceInfo, label string) (*models.TrustedDevice, error) {
	var result *models.TrustedDevice

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		now := time.Now()
		repo := s.repos.TrustedDevices(tx)

		existing, err := repo.Get(ctx, userID, device.DeviceID)
		switch {
		case err == nil:
			existing.Device = device
			existing.Label = label
			existing.Active = true
			existing.LastUsedAt = now
			if err := repo.Update(ctx, existing); err != nil {
				return err
			}
			result = existing
		case errors.Is(err, common.ErrorNotFound):
			result, err = repo.Insert(ctx, &models.TrustedDevice{
				UserID:     userID,
				Device:     device,
				Label:      label,
				Active:     true,
				TrustedAt:  now,
				LastUsedAt: now,
			})
			if err != nil {
				return err
			}
		default:
			return err
		}

		return s.repos.Sessions(tx).SetTrusted(ctx, userID, device.DeviceID, true)
	})
	if err != nil {
		return nil, fmt.Errorf("trusting device: %w", err)
	}

	s.logger.Info(ctx, "device trusted", "user_id", userID, "device_id", device.DeviceID)
	return result, nil
}

// Untrust deactivates the trust record, keeping the row. Untrusting a
// device with no record is a no-op.
func (s *TrustedDeviceService) Untrust(ctx context.Context, userID, deviceID string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repos.TrustedDevices(tx)

		existing, err := repo.Get(ctx, userID, deviceID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		if existing.Active {
			existing.Active = false
			if err := repo.Update(ctx, existing); err != nil {
				return err
			}
		}

		return s.repos.Sessions(tx).SetTrusted(ctx, userID, deviceID, false)
	})
	if err != nil {
		return fmt.Errorf("untrusting device: %w", err)
	}

	s.logger.Info(ctx, "device untrusted", "user_id", userID, "device_id", deviceID)
	return nil
}

// List returns the user's active trusted devices, most recently used
// first.
func (s *TrustedDeviceService) List(ctx context.Context, userID string) ([]*models.TrustedDevice, error) {
	devices, err := s.repos.TrustedDevices(s.db).ListActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing trusted devices: %w", err)
	}
	return devices, nil
}
