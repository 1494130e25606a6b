package models

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Authentication and MFA errors
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrDuplicateField      = errors.New("duplicate field")
	ErrInvalidMethod       = errors.New("invalid or unconfigured MFA method")
	ErrMethodRequired      = errors.New("MFA method is required")
	ErrMethodNotEnabled    = errors.New("MFA method is not enabled")
	ErrMissingPrerequisite = errors.New("missing prerequisite for MFA method")
	ErrExpired             = errors.New("code expired or no pending challenge")
	ErrInvalidCode         = errors.New("invalid code")
	ErrTooManyAttempts     = errors.New("too many failed attempts")
	ErrDeliveryFailed      = errors.New("code delivery failed")

	// Password and token errors
	ErrPolicyViolation = errors.New("password does not meet policy")
	ErrTokenInvalid    = errors.New("invalid or expired token")
	ErrTokenMismatch   = errors.New("token does not match request")
)

// DuplicateFieldError reports which unique identity field is already taken
type DuplicateFieldError struct {
	Field string
}

func (e *DuplicateFieldError) Error() string {
	return fmt.Sprintf("%s already in use", e.Field)
}

func (e *DuplicateFieldError) Unwrap() error {
	return ErrDuplicateField
}

// AttemptError is returned for a wrong code once the caller already knows a
// challenge exists, so the remaining attempt budget can be surfaced.
type AttemptError struct {
	Remaining int
}

func (e *AttemptError) Error() string {
	return fmt.Sprintf("invalid code, %d attempts remaining", e.Remaining)
}

func (e *AttemptError) Unwrap() error {
	return ErrInvalidCode
}

// LockoutError is returned while an attempt counter is locked out
type LockoutError struct {
	RetryAfter time.Duration // zero when the lock only clears by issuing a new code
}

func (e *LockoutError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("too many failed attempts, retry in %s", e.RetryAfter.Round(time.Second))
	}
	return "too many failed attempts, request a new code"
}

func (e *LockoutError) Unwrap() error {
	return ErrTooManyAttempts
}
