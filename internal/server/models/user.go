// Package models holds the persistent data shapes of the authentication
// core: users, refresh credentials, sessions, and trusted devices.
package models

import "time"

// User is the identity record. PasswordHash is nil for accounts created
// through federated sign-in; password flows are gated on its presence.
// Users are never hard-deleted here; Active=false instead.
type User struct {
	ID            string
	Email         string
	Phone         *string
	DisplayName   string
	PasswordHash  *string
	Role          Role
	Active        bool
	EmailVerified bool
	PhoneVerified bool
	LastLoginAt   *time.Time
	CreatedAt     time.Time
}
