package gateways

import (
	"context"
	"crypto/subtle"
	"errors"
	"strings"

	"github.com/dbelyaev/authcore/internal/logging"
)

// LogNotifier writes outbound messages to the log instead of sending them.
// In development the OTP code is read from the log, which is why a failed
// delivery never invalidates a stored challenge.
type LogNotifier struct {
	logger logging.Logger
}

func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("gateway", "log-notifier")}
}

func (n *LogNotifier) SendEmailOtp(ctx context.Context, toEmail, name, code string) error {
	n.logger.Info(ctx, "email otp issued", "to", toEmail, "name", name, "code", code)
	return nil
}

func (n *LogNotifier) SendWelcome(ctx context.Context, toEmail, name string) error {
	n.logger.Info(ctx, "welcome mail issued", "to", toEmail, "name", name)
	return nil
}

// StaticOtpProvider accepts exactly one preconfigured code for any phone
// number. Development/testing only.
type StaticOtpProvider struct {
	code   string
	logger logging.Logger
}

func NewStaticOtpProvider(code string, logger logging.Logger) (*StaticOtpProvider, error) {
	if code == "" {
		return nil, errors.New("static otp provider requires a code")
	}
	return &StaticOtpProvider{code: code, logger: logger.With("gateway", "static-otp")}, nil
}

func (p *StaticOtpProvider) StartVerification(ctx context.Context, phone string) error {
	p.logger.Info(ctx, "phone verification started", "phone", phone)
	return nil
}

func (p *StaticOtpProvider) CheckVerification(_ context.Context, _ string, code string) (bool, error) {
	return subtle.ConstantTimeCompare([]byte(p.code), []byte(code)) == 1, nil
}

// StaticVerifier treats assertions of the form "dev:<email>" as already
// verified. No cryptography is involved; development/testing only.
type StaticVerifier struct {
	logger logging.Logger
}

func NewStaticVerifier(logger logging.Logger) *StaticVerifier {
	return &StaticVerifier{logger: logger.With("gateway", "static-verifier")}
}

func (v *StaticVerifier) Verify(ctx context.Context, assertion string) (*VerifiedIdentity, error) {
	email, ok := strings.CutPrefix(assertion, "dev:")
	if !ok || !strings.Contains(email, "@") {
		return nil, errors.New("malformed assertion")
	}
	v.logger.Warn(ctx, "accepting unverified dev assertion", "email", email)
	return &VerifiedIdentity{
		Email:         email,
		DisplayName:   email[:strings.IndexByte(email, '@')],
		EmailVerified: true,
	}, nil
}
