// Package trusteddevices declares the repository contract for device-trust
// records.
package trusteddevices

import (
	"context"

	"github.com/dbelyaev/authcore/internal/server/models"
)

// Repository defines persistence operations for trusted devices. A row is
// unique per (user, device) regardless of its active flag; trust/untrust
// flip Active so history and the original TrustedAt survive.
type Repository interface {
	// Get returns the row for (userID, deviceID) whether active or not.
	Get(ctx context.Context, userID, deviceID string) (*models.TrustedDevice, error)

	Insert(ctx context.Context, device *models.TrustedDevice) (*models.TrustedDevice, error)
	Update(ctx context.Context, device *models.TrustedDevice) error

	// ListActive returns the user's active trusted devices, most recently
	// used first.
	ListActive(ctx context.Context, userID string) ([]*models.TrustedDevice, error)
}
