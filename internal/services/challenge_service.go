package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BradenHooton/mfagate/internal/models"
	pkgauth "github.com/BradenHooton/mfagate/pkg/auth"
	pkglogger "github.com/BradenHooton/mfagate/pkg/logger"
)

// totpSkew accepts codes up to two 30 second steps either side of now
const totpSkew = 2

// ChallengeConfig holds the challenge lifetime and delivery settings
type ChallengeConfig struct {
	CodeTTL         time.Duration
	DeliveryTimeout time.Duration
	Lockout         LockoutPolicy
}

// ChallengeService issues and verifies login one-time codes
type ChallengeService struct {
	repo   UserRepository
	email  EmailSender
	sms    SMSSender
	totp   TOTPVerifier
	config ChallengeConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewChallengeService creates a new ChallengeService
func NewChallengeService(repo UserRepository, email EmailSender, sms SMSSender, totp TOTPVerifier, config ChallengeConfig, logger *slog.Logger) *ChallengeService {
	return &ChallengeService{
		repo:   repo,
		email:  email,
		sms:    sms,
		totp:   totp,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Issue generates a fresh code for an email or SMS method, replaces any
// pending challenge, persists it and sends it out. A delivery failure returns
// ErrDeliveryFailed but leaves the stored challenge in place.
func (s *ChallengeService) Issue(ctx context.Context, user *models.User, method models.Method) (*models.ChallengeDescriptor, error) {
	destination, masked, err := destinationFor(user, method)
	if err != nil {
		return nil, err
	}

	code, err := pkgauth.GenerateNumericCode()
	if err != nil {
		s.logger.Error("failed to generate otp code", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	now := s.now()
	challenge := &models.OTPChallenge{
		CodeHash:  pkgauth.HashSecret(code),
		Method:    method,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.config.CodeTTL),
	}
	user.PendingOTP = challenge

	if _, err := s.repo.Update(ctx, user); err != nil {
		s.logger.Error("failed to persist otp challenge", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	descriptor := &models.ChallengeDescriptor{
		Method:      method,
		Destination: masked,
		ExpiresAt:   &challenge.ExpiresAt,
	}

	if err := s.deliver(ctx, method, destination, code, challenge.ExpiresAt); err != nil {
		s.logger.Error("failed to deliver otp code",
			slog.String("user_id", user.ID),
			slog.String("method", string(method)),
			slog.String("destination", masked),
			slog.Any("error", err))
		return descriptor, models.ErrDeliveryFailed
	}

	return descriptor, nil
}

func (s *ChallengeService) deliver(ctx context.Context, method models.Method, to, code string, expiresAt time.Time) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	defer cancel()

	switch method {
	case models.MethodEmail:
		return s.email.SendOTP(ctx, to, code, expiresAt)
	case models.MethodSMS:
		return s.sms.SendOTP(ctx, to, code, expiresAt)
	default:
		return models.ErrInvalidMethod
	}
}

// Verify checks code for method against the user's challenge state and
// updates the attempt counter. It never persists; the caller saves the user.
func (s *ChallengeService) Verify(user *models.User, code string, method models.Method) error {
	now := s.now()
	policy := s.config.Lockout

	if err := policy.Check(&user.OTPAttempts, now); err != nil {
		return err
	}

	ok, err := s.matches(user, code, method, now)
	if err != nil {
		return err
	}
	if !ok {
		remaining := policy.RecordFailure(&user.OTPAttempts, now)
		return &models.AttemptError{Remaining: remaining}
	}

	policy.Reset(&user.OTPAttempts)
	return nil
}

func (s *ChallengeService) matches(user *models.User, code string, method models.Method, now time.Time) (bool, error) {
	switch method {
	case models.MethodApp:
		if !user.HasTOTPSecret() {
			return false, models.ErrInvalidMethod
		}
		secret, err := s.totp.DecryptSecret(user.TOTPSecretEncrypted, user.TOTPSecretNonce)
		if err != nil {
			s.logger.Error("failed to decrypt totp secret", slog.String("user_id", user.ID), slog.Any("error", err))
			return false, models.ErrInternalServer
		}
		ok, err := s.totp.Verify(string(secret), code, totpSkew)
		if err != nil {
			s.logger.Error("totp verification failed", slog.String("user_id", user.ID), slog.Any("error", err))
			return false, models.ErrInternalServer
		}
		return ok, nil

	case models.MethodEmail, models.MethodSMS:
		challenge := user.PendingOTP
		if challenge == nil || challenge.Method != method || challenge.Expired(now) {
			return false, models.ErrExpired
		}
		return pkgauth.MatchesHash(code, challenge.CodeHash), nil

	default:
		return false, models.ErrInvalidMethod
	}
}

// destinationFor returns the raw and masked address a delivered method sends to
func destinationFor(user *models.User, method models.Method) (string, string, error) {
	switch method {
	case models.MethodEmail:
		if user.Email == "" {
			return "", "", models.ErrInvalidMethod
		}
		return user.Email, pkglogger.MaskEmail(user.Email), nil
	case models.MethodSMS:
		if user.Phone == "" {
			return "", "", models.ErrInvalidMethod
		}
		return user.Phone, pkglogger.MaskPhone(user.Phone), nil
	default:
		return "", "", models.ErrInvalidMethod
	}
}

// isVerificationOutcome reports whether err left counter or challenge state
// that must be written back
func isVerificationOutcome(err error) bool {
	var attemptErr *models.AttemptError
	return errors.As(err, &attemptErr) || errors.Is(err, models.ErrExpired) || errors.Is(err, models.ErrTooManyAttempts)
}
