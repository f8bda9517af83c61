package models

import "time"

// RefreshCredential is one opaque refresh token row. A credential is usable
// only while it is neither revoked nor past ExpiresAt; rotation and
// revocation flip Revoked rather than deleting the row.
type RefreshCredential struct {
	ID        string
	UserID    string
	Token     string
	ExpiresAt time.Time
	Revoked   bool
	CreatedAt time.Time
}

// Usable reports whether the credential can still be exchanged at instant t.
func (c *RefreshCredential) Usable(t time.Time) bool {
	return !c.Revoked && c.ExpiresAt.After(t)
}
