// Package challenge stores the transient state of passwordless logins: the
// self-managed email code challenges and the phone→user correlations for
// the delegated phone flow. Production deployments back it with redis so
// multiple instances share state; the in-memory implementation serves
// single-instance runs and tests.
package challenge

import (
	"context"
	"time"
)

// EmailChallenge is one live email OTP. There is at most one per address;
// issuing a new code overwrites the previous entry.
type EmailChallenge struct {
	Code        string    `json:"code"`
	UserID      string    `json:"user_id"`
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the challenge is past its expiry at instant t.
func (c *EmailChallenge) Expired(t time.Time) bool {
	return !c.ExpiresAt.After(t)
}

// Store is the keyed challenge state behind both OTP flows. Email keys must
// be normalized (lower-cased) and phone keys normalized to digits before
// calling. Absent entries report common.ErrorNotFound. Expiry is handled
// asymmetrically: phone correlations past their ttl also report
// ErrorNotFound, while email challenges are returned with their ExpiresAt
// intact so the service can answer ErrExpired instead of pretending the
// challenge never existed.
type Store interface {
	SaveEmailChallenge(ctx context.Context, email string, ch *EmailChallenge) error
	GetEmailChallenge(ctx context.Context, email string) (*EmailChallenge, error)
	DeleteEmailChallenge(ctx context.Context, email string) error

	SavePhoneCorrelation(ctx context.Context, phone, userID string, ttl time.Duration) error
	GetPhoneCorrelation(ctx context.Context, phone string) (string, error)
	DeletePhoneCorrelation(ctx context.Context, phone string) error
}
