// Package common defines shared constants and sentinel errors used across
// the authentication core. Callers should use errors.Is to match these
// values; flows that carry extra detail (remaining attempts, the conflicting
// role) wrap the sentinel with fmt.Errorf and %w.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Credential lifecycle errors.
	ErrInvalidCredential = errors.New("invalid refresh credential")
	ErrAccountDisabled   = errors.New("account disabled")

	// Federated identity errors.
	ErrRoleConflict = errors.New("role conflict")

	// One-time-code errors.
	ErrRateLimited        = errors.New("rate limited")
	ErrExpired            = errors.New("code expired")
	ErrAttemptsExhausted  = errors.New("verification attempts exhausted")
	ErrInvalidCode        = errors.New("invalid code")
	ErrNoPendingChallenge = errors.New("no pending challenge")

	// Session/device ownership errors.
	ErrNotAuthorized = errors.New("not authorized")

	// Account errors.
	ErrEmailTaken     = errors.New("email already registered")
	ErrPasswordNotSet = errors.New("account uses external sign-in")

	// Delegated-provider errors. The only kind eligible for caller retry.
	ErrDeliveryFailed = errors.New("delivery failed")
)
