package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/BradenHooton/mfagate/internal/models"
	"github.com/BradenHooton/mfagate/internal/services"
	pkghttp "github.com/BradenHooton/mfagate/pkg/http"
)

// writeServiceError maps service errors to HTTP responses. Anything not
// recognised is logged and reported as a 500.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var (
		attemptErr *models.AttemptError
		lockoutErr *models.LockoutError
		dupErr     *models.DuplicateFieldError
		policyErr  *services.PolicyError
	)

	switch {
	case errors.As(err, &attemptErr):
		pkghttp.WriteInvalidCode(w, "Invalid verification code", attemptErr.Remaining)
	case errors.As(err, &lockoutErr):
		pkghttp.WriteLockedOut(w, lockoutMessage(lockoutErr), lockoutErr.RetryAfter)
	case errors.As(err, &dupErr):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "duplicate_field", dupErr.Error(), dupErr.Field)
	case errors.As(err, &policyErr):
		pkghttp.WriteErrorWithDetails(w, http.StatusBadRequest, "policy_violation",
			"Password does not meet requirements", strings.Join(policyErr.Reasons, "; "))
	case errors.Is(err, models.ErrInvalidCredentials):
		pkghttp.WriteUnauthorized(w, "Invalid username or password")
	case errors.Is(err, models.ErrNotFound):
		pkghttp.WriteNotFound(w, "User not found")
	case errors.Is(err, models.ErrInvalidMethod):
		pkghttp.WriteError(w, http.StatusBadRequest, "invalid_method", "Invalid or unconfigured MFA method")
	case errors.Is(err, models.ErrMethodRequired):
		pkghttp.WriteError(w, http.StatusBadRequest, "method_required", "MFA method is required")
	case errors.Is(err, models.ErrMethodNotEnabled):
		pkghttp.WriteError(w, http.StatusBadRequest, "method_not_enabled", "MFA method is not enabled")
	case errors.Is(err, models.ErrMissingPrerequisite):
		pkghttp.WriteError(w, http.StatusBadRequest, "missing_prerequisite", "Add an email or phone number before enabling this method")
	case errors.Is(err, models.ErrExpired):
		pkghttp.WriteError(w, http.StatusBadRequest, "expired", "Code expired or not requested")
	case errors.Is(err, models.ErrDeliveryFailed):
		pkghttp.WriteError(w, http.StatusInternalServerError, "delivery_failed", "Failed to send verification code")
	case errors.Is(err, models.ErrTokenMismatch):
		pkghttp.WriteError(w, http.StatusBadRequest, "token_mismatch", "Reset token does not match this email")
	case errors.Is(err, models.ErrTokenInvalid):
		pkghttp.WriteError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired reset token")
	case errors.Is(err, models.ErrBadRequest):
		pkghttp.WriteBadRequest(w, "Invalid request")
	default:
		if !errors.Is(err, models.ErrInternalServer) {
			logger.Error("unhandled service error", slog.Any("error", err))
		}
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

func lockoutMessage(err *models.LockoutError) string {
	if err.RetryAfter > 0 {
		return "Too many failed attempts. Please try again later."
	}
	return "Too many failed attempts. Please request a new code."
}
