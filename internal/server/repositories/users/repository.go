// Package users declares the repository contract for identity records.
package users

import (
	"context"
	"time"

	"github.com/dbelyaev/authcore/internal/server/models"
)

// Repository defines persistence operations for users. Implementations
// return common.ErrorNotFound when a lookup matches nothing.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)

	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
	SetEmailVerified(ctx context.Context, id string) error
	SetPhoneVerified(ctx context.Context, id string) error

	// SetActive flips the account's active flag. Credential cleanup on
	// disable is the service layer's job, not the repository's.
	SetActive(ctx context.Context, id string, active bool) error
}
