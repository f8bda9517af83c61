// Package sessions declares the repository contract for per-device session
// rows.
package sessions

import (
	"context"

	"github.com/dbelyaev/authcore/internal/server/models"
)

// Repository defines persistence operations for sessions. At most one
// active row exists per (user, device); the service layer decides between
// Insert and Update after a GetActive lookup, inside one transaction.
type Repository interface {
	Insert(ctx context.Context, session *models.Session) (*models.Session, error)
	Update(ctx context.Context, session *models.Session) error

	GetByID(ctx context.Context, id string) (*models.Session, error)
	GetActive(ctx context.Context, userID, deviceID string) (*models.Session, error)

	// ListActive returns the user's active sessions, most recent activity
	// first.
	ListActive(ctx context.Context, userID string) ([]*models.Session, error)

	Deactivate(ctx context.Context, id string) error
	DeactivateAll(ctx context.Context, userID string) (int64, error)
	DeactivateAllExcept(ctx context.Context, userID, deviceID string) (int64, error)

	// SetTrusted updates the copied trust flag on the active session for
	// the device, if one exists.
	SetTrusted(ctx context.Context, userID, deviceID string, trusted bool) error

	// ReplaceCredential repoints any active session backed by the old
	// credential at its successor. Called from the rotation transaction.
	ReplaceCredential(ctx context.Context, oldCredentialID, newCredentialID string) error
}
