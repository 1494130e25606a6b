package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/BradenHooton/mfagate/internal/auth"
	"github.com/BradenHooton/mfagate/internal/locks"
	"github.com/BradenHooton/mfagate/internal/models"
	pkgauth "github.com/BradenHooton/mfagate/pkg/auth"
	pkglogger "github.com/BradenHooton/mfagate/pkg/logger"
)

// PasswordResetConfig holds the reset code lifetime and lockout settings
type PasswordResetConfig struct {
	CodeTTL         time.Duration
	DeliveryTimeout time.Duration
	Lockout         LockoutPolicy
}

// PasswordResetService runs the email keyed reset flow: request a code,
// exchange it for a short lived reset token, then set a new password
type PasswordResetService struct {
	repo        UserRepository
	email       EmailSender
	tm          *auth.TokenManager
	devices     *DeviceTrust
	locker      locks.UserLocker
	config      PasswordResetConfig
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
	now         func() time.Time
}

// NewPasswordResetService creates a new PasswordResetService
func NewPasswordResetService(
	repo UserRepository,
	email EmailSender,
	tm *auth.TokenManager,
	devices *DeviceTrust,
	locker locks.UserLocker,
	config PasswordResetConfig,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *PasswordResetService {
	return &PasswordResetService{
		repo:        repo,
		email:       email,
		tm:          tm,
		devices:     devices,
		locker:      locker,
		config:      config,
		logger:      logger,
		auditLogger: auditLogger,
		now:         time.Now,
	}
}

// lockByEmail resolves email to a user, takes the user lock and reloads the
// record under it. ErrNotFound is returned for unknown emails.
func (s *PasswordResetService) lockByEmail(ctx context.Context, email string) (*models.User, func(), error) {
	found, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, nil, models.ErrNotFound
		}
		s.logger.Error("failed to get user by email", slog.Any("error", err))
		return nil, nil, models.ErrInternalServer
	}

	release, err := lockUser(ctx, s.locker, s.logger, found.ID)
	if err != nil {
		return nil, nil, err
	}

	user, err := loadUser(ctx, s.repo, s.logger, found.ID)
	if err != nil {
		release()
		return nil, nil, err
	}
	return user, release, nil
}

// RequestReset mails a reset code when the email belongs to an account.
// Unknown emails and delivery failures are not reported to the caller.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	email = normalizeEmail(email)
	if email == "" {
		return nil
	}

	user, release, err := s.lockByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return err
	}
	defer release()

	code, err := pkgauth.GenerateNumericCode()
	if err != nil {
		s.logger.Error("failed to generate reset code", slog.Any("error", err))
		return models.ErrInternalServer
	}

	expiresAt := s.now().Add(s.config.CodeTTL)
	user.PendingReset = &models.ResetChallenge{
		CodeHash:  pkgauth.HashSecret(code),
		ExpiresAt: expiresAt,
	}

	if _, err := s.repo.Update(ctx, user); err != nil {
		s.logger.Error("failed to persist reset challenge", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	defer cancel()
	if err := s.email.SendResetCode(sendCtx, user.Email, code, expiresAt); err != nil {
		s.logger.Error("failed to send reset code",
			slog.String("user_id", user.ID),
			slog.String("email", pkglogger.SanitizedEmail(user.Email)),
			slog.Any("error", err))
	}

	s.auditLogger.LogPasswordEvent(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventResetRequested,
		UserID:    user.ID,
		Success:   true,
	})
	return nil
}

// VerifyResetCode exchanges a valid reset code for a reset token. Once the
// attempt budget is spent only a new code unlocks the flow.
func (s *PasswordResetService) VerifyResetCode(ctx context.Context, email, code string) (string, error) {
	email = normalizeEmail(email)

	user, release, err := s.lockByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return "", models.ErrExpired
		}
		return "", err
	}
	defer release()

	challenge := user.PendingReset
	if challenge == nil {
		return "", models.ErrExpired
	}

	now := s.now()
	policy := s.config.Lockout
	if err := policy.Check(&challenge.Attempts, now); err != nil {
		s.auditReset(ctx, pkglogger.EventResetCodeChecked, user.ID, err)
		return "", err
	}
	if challenge.Expired(now) {
		return "", models.ErrExpired
	}

	if !pkgauth.MatchesHash(code, challenge.CodeHash) {
		remaining := policy.RecordFailure(&challenge.Attempts, now)
		if _, err := s.repo.Update(ctx, user); err != nil {
			s.logger.Error("failed to persist reset attempt", slog.String("user_id", user.ID), slog.Any("error", err))
			return "", models.ErrInternalServer
		}
		attemptErr := &models.AttemptError{Remaining: remaining}
		s.auditReset(ctx, pkglogger.EventResetCodeChecked, user.ID, attemptErr)
		return "", attemptErr
	}

	token, jti, err := s.tm.GenerateResetToken(user.ID, user.Email)
	if err != nil {
		s.logger.Error("failed to generate reset token", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	policy.Reset(&challenge.Attempts)
	challenge.Verified = true
	challenge.TokenID = jti

	if _, err := s.repo.Update(ctx, user); err != nil {
		s.logger.Error("failed to persist verified reset challenge", slog.String("user_id", user.ID), slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.auditReset(ctx, pkglogger.EventResetCodeChecked, user.ID, nil)
	return token, nil
}

// ResetPassword sets a new password using a reset token. The reset state is
// consumed, trusted devices are revoked and sessions issued earlier stop
// validating.
func (s *PasswordResetService) ResetPassword(ctx context.Context, resetToken, email, newPassword string) error {
	claims, err := s.tm.ValidateResetToken(resetToken)
	if err != nil {
		return models.ErrTokenInvalid
	}

	email = normalizeEmail(email)
	if claims.Email != email {
		return models.ErrTokenMismatch
	}

	if err := pkgauth.ValidatePassword(newPassword); err != nil {
		return &PolicyError{Reasons: policyReasons(err)}
	}

	release, err := lockUser(ctx, s.locker, s.logger, claims.UserID)
	if err != nil {
		return err
	}
	defer release()

	user, err := loadUser(ctx, s.repo, s.logger, claims.UserID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ErrTokenInvalid
		}
		return err
	}

	challenge := user.PendingReset
	if user.Email != claims.Email || challenge == nil || !challenge.Verified || challenge.TokenID != claims.ID {
		s.auditReset(ctx, pkglogger.EventPasswordReset, user.ID, models.ErrTokenInvalid)
		return models.ErrTokenInvalid
	}

	hash, err := pkgauth.HashPassword(newPassword)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return models.ErrInternalServer
	}

	changedAt := s.now()
	user.PasswordHash = hash
	user.PasswordChangedAt = &changedAt
	user.PendingReset = nil
	s.devices.RevokeAll(user)

	if _, err := s.repo.Update(ctx, user); err != nil {
		s.logger.Error("failed to persist new password", slog.String("user_id", user.ID), slog.Any("error", err))
		return models.ErrInternalServer
	}

	s.logger.Info("password reset", slog.String("user_id", user.ID))
	s.auditReset(ctx, pkglogger.EventPasswordReset, user.ID, nil)

	sendCtx, cancel := context.WithTimeout(ctx, s.config.DeliveryTimeout)
	defer cancel()
	if err := s.email.SendPasswordChanged(sendCtx, user.Email); err != nil {
		s.logger.Warn("failed to send password change notice", slog.String("user_id", user.ID), slog.Any("error", err))
	}
	return nil
}

func (s *PasswordResetService) auditReset(ctx context.Context, eventType, userID string, err error) {
	s.auditLogger.LogPasswordEvent(ctx, pkglogger.AuditEvent{
		EventType:     eventType,
		UserID:        userID,
		Success:       err == nil,
		FailureReason: failureReason(err),
	})
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
