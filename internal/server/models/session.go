package models

import "time"

// DeviceInfo is the client-reported device metadata attached to sessions
// and trusted devices. DeviceID is the natural key within one user.
type DeviceInfo struct {
	DeviceID   string
	Name       string
	Model      string
	Platform   string
	OSVersion  string
	AppVersion string
}

// Session records one user being active on one device. At most one active
// row exists per (UserID, DeviceID); re-login updates the row in place.
// CredentialID points at the refresh credential currently backing the
// session; Trusted is a copy of the device's trust state taken at upsert
// time, not a live reference.
type Session struct {
	ID             string
	UserID         string
	Device         DeviceInfo
	IP             string
	Trusted        bool
	Active         bool
	CredentialID   string
	LastActivityAt time.Time
	CreatedAt      time.Time
}

// SessionView is a Session decorated for listing: IsCurrent marks the row
// matching the caller's own device.
type SessionView struct {
	Session
	IsCurrent bool
}
