package models

import (
	"time"
)

// Method is an MFA verification channel
type Method string

const (
	MethodEmail Method = "email"
	MethodSMS   Method = "sms"
	MethodApp   Method = "app"
)

// ParseMethod validates a raw method name
func ParseMethod(raw string) (Method, error) {
	switch m := Method(raw); m {
	case MethodEmail, MethodSMS, MethodApp:
		return m, nil
	default:
		return "", ErrInvalidMethod
	}
}

// Delivered reports whether the method sends a code out-of-band
func (m Method) Delivered() bool {
	return m == MethodEmail || m == MethodSMS
}

// OTPChallenge is the single pending login challenge of a user.
// A nil *OTPChallenge on the user means no challenge is pending.
type OTPChallenge struct {
	CodeHash  string    `json:"code_hash"`
	Method    Method    `json:"method"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the challenge can no longer be answered at now
func (c *OTPChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// ResetChallenge is the pending password reset challenge of a user
type ResetChallenge struct {
	CodeHash  string         `json:"code_hash"`
	ExpiresAt time.Time      `json:"expires_at"`
	Attempts  AttemptCounter `json:"attempts"`
	Verified  bool           `json:"verified"`
	TokenID   string         `json:"token_id,omitempty"` // JTI of the reset token minted on verification
}

// Expired reports whether the reset code can no longer be answered at now
func (c *ResetChallenge) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AttemptCounter tracks failed verifications for lockout decisions
type AttemptCounter struct {
	Count         int        `json:"count"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// TrustedDevice exempts a client from MFA until ExpiresAt.
// Only the SHA-256 of the device token is stored.
type TrustedDevice struct {
	TokenHash string    `json:"token_hash"`
	Prefix    string    `json:"prefix"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Live reports whether the device exemption is still valid at now
func (d TrustedDevice) Live(now time.Time) bool {
	return d.ExpiresAt.After(now)
}

// LoginResult is returned by the credential step of a login attempt
type LoginResult struct {
	Token         string   `json:"token,omitempty"`
	DeviceTrusted bool     `json:"device_trusted"`
	MFARequired   bool     `json:"mfa_required"`
	Methods       []Method `json:"methods,omitempty"`
	UserID        string   `json:"user_id,omitempty"`
	MaskedEmail   string   `json:"email,omitempty"`
	MaskedPhone   string   `json:"phone,omitempty"`
}

// ChallengeDescriptor describes the challenge issued for a selected method
type ChallengeDescriptor struct {
	Method      Method     `json:"method"`
	Destination string     `json:"destination,omitempty"` // masked, display only
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// VerifyResult is returned after a successful OTP verification
type VerifyResult struct {
	Token    string `json:"token"`
	DeviceID string `json:"device_id,omitempty"`
}

// MFAConfiguration is the user-visible MFA state
type MFAConfiguration struct {
	MFAEnabled  bool     `json:"mfa_enabled"`
	Methods     []Method `json:"methods"`
	MaskedEmail string   `json:"email,omitempty"`
	MaskedPhone string   `json:"phone,omitempty"`
}

// AppEnrollment carries the provisioning data for an authenticator app
type AppEnrollment struct {
	MFAConfiguration
	Secret     string `json:"secret"`
	OTPAuthURL string `json:"otpauth_url"`
	QRCode     string `json:"qr_code"` // PNG data URL
}

// TrustedDeviceInfo is a redacted view of a trusted device
type TrustedDeviceInfo struct {
	DeviceID  string    `json:"device_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Availability reports per-field availability; nil fields were not queried
type Availability struct {
	Username *bool `json:"username,omitempty"`
	Email    *bool `json:"email,omitempty"`
	Phone    *bool `json:"phone,omitempty"`
}
