// Package gateways declares the contracts of the external collaborators the
// core depends on: outbound notifications, the delegated phone-OTP
// provider, and the federated-assertion verifier. Implementations live
// outside this core; the dev implementations here exist so a single binary
// runs end to end without real providers.
package gateways

import "context"

// NotificationGateway delivers codes and transactional mail. Calls are
// best-effort and non-transactional with local state: a challenge written
// before a failed send stays usable.
type NotificationGateway interface {
	SendEmailOtp(ctx context.Context, toEmail, name, code string) error
	SendWelcome(ctx context.Context, toEmail, name string) error
}

// ExternalOtpProvider owns phone-OTP generation, delivery, expiry, and
// attempt limiting. The core only correlates phone→user and forwards
// verification checks.
type ExternalOtpProvider interface {
	StartVerification(ctx context.Context, phone string) error
	CheckVerification(ctx context.Context, phone, code string) (bool, error)
}

// VerifiedIdentity is the output of a successfully verified federated
// assertion.
type VerifiedIdentity struct {
	Email         string
	DisplayName   string
	EmailVerified bool
}

// FederatedIdentityVerifier cryptographically validates an opaque assertion
// from an identity provider. It must reject before identity resolution is
// attempted.
type FederatedIdentityVerifier interface {
	Verify(ctx context.Context, assertion string) (*VerifiedIdentity, error)
}
