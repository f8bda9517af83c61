package models

import "time"

// TrustedDevice is a device-level trust record with a lifetime independent
// of any session. Unique per (UserID, DeviceID); untrusting flips Active
// instead of deleting, so re-trusting reactivates the row and TrustedAt
// keeps the original trust time.
type TrustedDevice struct {
	ID         string
	UserID     string
	Device     DeviceInfo
	Label      string
	Active     bool
	TrustedAt  time.Time
	LastUsedAt time.Time
}
