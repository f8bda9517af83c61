package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dbelyaev/authcore/internal/common"
	"github.com/dbelyaev/authcore/internal/logging"
	"github.com/dbelyaev/authcore/internal/server/challenge"
	"github.com/dbelyaev/authcore/internal/server/config"
	"github.com/dbelyaev/authcore/internal/server/gateways"
	"github.com/dbelyaev/authcore/internal/server/metrics"
	"github.com/dbelyaev/authcore/internal/server/models"
	"github.com/dbelyaev/authcore/internal/server/repositories/repomanager"
)

// OtpService runs the two passwordless login flows. Email codes are
// generated, stored, and checked here; phone codes belong entirely to the
// external provider and this service only correlates phone numbers to
// users while a verification is pending.
type OtpService struct {
	db       *sql.DB
	repos    repomanager.RepositoryManager
	store    challenge.Store
	notifier gateways.NotificationGateway
	provider gateways.ExternalOtpProvider
	auth     *AuthService

	codeLength      int
	validity        time.Duration
	resendWindow    time.Duration
	pendingValidity time.Duration
	providerTimeout time.Duration
	maxAttempts     int

	logger  logging.Logger
	metrics *metrics.Metrics
}

func NewOtpService(db *sql.DB, repos repomanager.RepositoryManager, store challenge.Store,
	notifier gateways.NotificationGateway, provider gateways.ExternalOtpProvider,
	authSvc *AuthService, cfg *config.Config, logger logging.Logger, m *metrics.Metrics) *OtpService {
	return &OtpService{
		db:              db,
		repos:           repos,
		store:           store,
		notifier:        notifier,
		provider:        provider,
		auth:            authSvc,
		codeLength:      cfg.OtpCodeLength,
		validity:        cfg.OtpValidityDuration,
		resendWindow:    cfg.OtpResendWindow,
		pendingValidity: cfg.PhonePendingValidityDuration,
		providerTimeout: cfg.ProviderTimeout,
		maxAttempts:     cfg.OtpMaxAttempts,
		logger:          logger.With("service", "otp"),
		metrics:         m,
	}
}

// SendEmailOtp generates a code for the account behind the address and
// mails it. The returned string is the masked address for display.
// Re-requesting within the resend window fails ErrRateLimited; outside it,
// a fresh code replaces the old one. A failed send keeps the stored
// challenge, so the code still works if the mail arrives late.
func (s *OtpService) SendEmailOtp(ctx context.Context, email string) (string, error) {
	email = common.NormalizeEmail(email)

	user, err := s.repos.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}
	if !user.Active {
		// Disabled accounts look like absent ones here.
		return "", common.ErrorNotFound
	}

	now := time.Now()
	if prev, err := s.store.GetEmailChallenge(ctx, email); err == nil {
		if now.Sub(prev.CreatedAt) < s.resendWindow && !prev.Expired(now) {
			return "", common.ErrRateLimited
		}
	} else if !errors.Is(err, common.ErrorNotFound) {
		return "", fmt.Errorf("checking pending challenge: %w", err)
	}

	code, err := common.MakeNumericCode(s.codeLength)
	if err != nil {
		return "", fmt.Errorf("generating code: %w", err)
	}

	ch := &challenge.EmailChallenge{
		Code:        code,
		UserID:      user.ID,
		MaxAttempts: s.maxAttempts,
		ExpiresAt:   now.Add(s.validity),
		CreatedAt:   now,
	}
	if err := s.store.SaveEmailChallenge(ctx, email, ch); err != nil {
		return "", fmt.Errorf("storing challenge: %w", err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	if err := s.notifier.SendEmailOtp(sendCtx, user.Email, user.DisplayName, code); err != nil {
		s.logger.Error(ctx, "email otp delivery failed", "user_id", user.ID, "error", err)
		s.metrics.OtpSends.WithLabelValues("email", "failed").Inc()
		return "", fmt.Errorf("%w: %v", common.ErrDeliveryFailed, err)
	}

	s.metrics.OtpSends.WithLabelValues("email", "ok").Inc()
	s.logger.Info(ctx, "email otp sent", "user_id", user.ID)
	return common.MaskEmail(user.Email), nil
}

// VerifyEmailOtp checks the submitted code against the pending challenge
// and completes the login on match. A mismatch consumes one attempt; the
// wrapped ErrInvalidCode reports how many remain. Exhausting the budget or
// presenting a code with no live challenge fails ErrNoPendingChallenge, so
// a caller cannot keep probing a burned challenge.
func (s *OtpService) VerifyEmailOtp(ctx context.Context, email, code string, device models.DeviceInfo, ip string) (*LoginResult, error) {
	email = common.NormalizeEmail(email)

	ch, err := s.store.GetEmailChallenge(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.OtpVerifies.WithLabelValues("email", "no_challenge").Inc()
			return nil, common.ErrNoPendingChallenge
		}
		return nil, fmt.Errorf("loading challenge: %w", err)
	}

	if ch.Expired(time.Now()) {
		_ = s.store.DeleteEmailChallenge(ctx, email)
		s.metrics.OtpVerifies.WithLabelValues("email", "expired").Inc()
		return nil, common.ErrExpired
	}

	if code != ch.Code {
		ch.Attempts++
		if ch.Attempts >= ch.MaxAttempts {
			_ = s.store.DeleteEmailChallenge(ctx, email)
			s.metrics.OtpVerifies.WithLabelValues("email", "exhausted").Inc()
			return nil, common.ErrAttemptsExhausted
		}
		if err := s.store.SaveEmailChallenge(ctx, email, ch); err != nil {
			return nil, fmt.Errorf("updating challenge: %w", err)
		}
		s.metrics.OtpVerifies.WithLabelValues("email", "mismatch").Inc()
		remaining := ch.MaxAttempts - ch.Attempts
		return nil, fmt.Errorf("%w: %d attempts remaining", common.ErrInvalidCode, remaining)
	}

	if err := s.store.DeleteEmailChallenge(ctx, email); err != nil {
		return nil, fmt.Errorf("consuming challenge: %w", err)
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, ch.UserID)
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if !user.Active {
		s.metrics.OtpVerifies.WithLabelValues("email", "disabled").Inc()
		return nil, common.ErrAccountDisabled
	}

	if !user.EmailVerified {
		if err := s.repos.Users(s.db).SetEmailVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("marking email verified: %w", err)
		}
		user.EmailVerified = true
	}

	s.metrics.OtpVerifies.WithLabelValues("email", "ok").Inc()
	return s.auth.CompleteLogin(ctx, user, device, ip, "otp_email")
}

// SendPhoneOtp asks the external provider to start a verification for the
// account behind the number and remembers the phone→user correlation
// until it either completes or times out. The returned string is the
// masked number for display.
func (s *OtpService) SendPhoneOtp(ctx context.Context, phone string) (string, error) {
	phone = common.NormalizePhone(phone)

	user, err := s.repos.Users(s.db).GetByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorNotFound
		}
		return "", fmt.Errorf("looking up user: %w", err)
	}
	if !user.Active {
		return "", common.ErrAccountDisabled
	}

	startCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	if err := s.provider.StartVerification(startCtx, phone); err != nil {
		s.logger.Error(ctx, "phone otp start failed", "user_id", user.ID, "error", err)
		s.metrics.OtpSends.WithLabelValues("phone", "failed").Inc()
		return "", fmt.Errorf("%w: %v", common.ErrDeliveryFailed, err)
	}

	if err := s.store.SavePhoneCorrelation(ctx, phone, user.ID, s.pendingValidity); err != nil {
		return "", fmt.Errorf("storing correlation: %w", err)
	}

	s.metrics.OtpSends.WithLabelValues("phone", "ok").Inc()
	s.logger.Info(ctx, "phone otp started", "user_id", user.ID)
	return common.MaskPhone(phone), nil
}

// VerifyPhoneOtp forwards the code to the provider and completes the login
// if it accepts. Attempt limiting and expiry of the code itself are the
// provider's; the correlation here only bounds how long the pending login
// is honored.
func (s *OtpService) VerifyPhoneOtp(ctx context.Context, phone, code string, device models.DeviceInfo, ip string) (*LoginResult, error) {
	phone = common.NormalizePhone(phone)

	userID, err := s.store.GetPhoneCorrelation(ctx, phone)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.metrics.OtpVerifies.WithLabelValues("phone", "no_challenge").Inc()
			return nil, common.ErrNoPendingChallenge
		}
		return nil, fmt.Errorf("loading correlation: %w", err)
	}

	checkCtx, cancel := context.WithTimeout(ctx, s.providerTimeout)
	defer cancel()
	ok, err := s.provider.CheckVerification(checkCtx, phone, code)
	if err != nil {
		s.logger.Error(ctx, "phone otp check failed", "error", err)
		return nil, fmt.Errorf("%w: %v", common.ErrDeliveryFailed, err)
	}
	if !ok {
		s.metrics.OtpVerifies.WithLabelValues("phone", "mismatch").Inc()
		return nil, fmt.Errorf("%w: invalid or expired code", common.ErrInvalidCode)
	}

	if err := s.store.DeletePhoneCorrelation(ctx, phone); err != nil {
		return nil, fmt.Errorf("consuming correlation: %w", err)
	}

	user, err := s.repos.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	if !user.Active {
		s.metrics.OtpVerifies.WithLabelValues("phone", "disabled").Inc()
		return nil, common.ErrAccountDisabled
	}

	if !user.PhoneVerified {
		if err := s.repos.Users(s.db).SetPhoneVerified(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("marking phone verified: %w", err)
		}
		user.PhoneVerified = true
	}

	s.metrics.OtpVerifies.WithLabelValues("phone", "ok").Inc()
	return s.auth.CompleteLogin(ctx, user, device, ip, "otp_phone")
}
