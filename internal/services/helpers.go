package services

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/BradenHooton/mfagate/internal/locks"
	"github.com/BradenHooton/mfagate/internal/models"
	pkgauth "github.com/BradenHooton/mfagate/pkg/auth"
)

// PolicyError lists why a password was rejected
type PolicyError struct {
	Reasons []string
}

func (e *PolicyError) Error() string {
	return "password does not meet policy: " + strings.Join(e.Reasons, "; ")
}

func (e *PolicyError) Unwrap() error {
	return models.ErrPolicyViolation
}

func policyReasons(err error) []string {
	var validationErr *pkgauth.PasswordValidationError
	if errors.As(err, &validationErr) {
		return validationErr.Errors
	}
	return []string{err.Error()}
}

// lockUser serializes read-modify-write cycles on one user record
func lockUser(ctx context.Context, locker locks.UserLocker, logger *slog.Logger, userID string) (func(), error) {
	release, err := locker.Lock(ctx, userID)
	if err != nil {
		logger.Error("failed to acquire user lock", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return release, nil
}

func loadUser(ctx context.Context, repo UserRepository, logger *slog.Logger, userID string) (*models.User, error) {
	user, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, models.ErrNotFound
		}
		logger.Error("failed to get user by id", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

// failureReason turns a service error into a short audit label
func failureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, models.ErrTooManyAttempts):
		return "locked_out"
	case errors.Is(err, models.ErrInvalidCode):
		return "invalid_code"
	case errors.Is(err, models.ErrExpired):
		return "expired"
	case errors.Is(err, models.ErrInvalidMethod):
		return "invalid_method"
	case errors.Is(err, models.ErrDeliveryFailed):
		return "delivery_failed"
	case errors.Is(err, models.ErrTokenInvalid), errors.Is(err, models.ErrTokenMismatch):
		return "invalid_token"
	case errors.Is(err, models.ErrPolicyViolation):
		return "policy_violation"
	default:
		return "internal_error"
	}
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}
