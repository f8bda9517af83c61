// Package credentials declares the repository contract for refresh
// credentials in persistent storage.
package credentials

import (
	"context"
	"time"

	"github.com/dbelyaev/authcore/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking
// refresh credentials. Revocation is logical: rows are flagged, never
// deleted, which keeps replayed tokens observable.
type Repository interface {
	// Create stores a new credential for userID expiring at expiresAt.
	Create(ctx context.Context, userID, token string, expiresAt time.Time) (*models.RefreshCredential, error)

	// FindActive looks up a credential that is neither revoked nor expired.
	// Returns common.ErrorNotFound otherwise.
	FindActive(ctx context.Context, token string) (*models.RefreshCredential, error)

	// Revoke flags a not-yet-revoked credential and reports whether a row
	// changed. The rows-affected answer is what makes concurrent rotation
	// single-winner.
	Revoke(ctx context.Context, token string) (bool, error)

	// RevokeAllForUser flags every active credential of the user and
	// returns how many were revoked.
	RevokeAllForUser(ctx context.Context, userID string) (int64, error)

	// CountActiveForUser returns the number of usable credentials the user
	// still holds.
	CountActiveForUser(ctx context.Context, userID string) (int64, error)
}
