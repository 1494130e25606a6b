package models

import (
	"slices"
	"time"
)

type User struct {
	ID                string
	Username          string
	Email             string // lower-cased, may be empty
	Phone             string // may be empty
	PasswordHash      string
	PasswordChangedAt *time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time

	// MFA configuration
	MFAEnabled          bool
	MFAMethods          []Method
	TOTPSecretEncrypted []byte // AES-256-GCM encrypted base32 TOTP seed
	TOTPSecretNonce     []byte
	SelectedMethod      Method // method chosen by the last request-otp, "" if none

	// Challenge state
	PendingOTP     *OTPChallenge
	OTPAttempts    AttemptCounter
	PendingReset   *ResetChallenge
	TrustedDevices []TrustedDevice
}

// HasMethod reports whether m is configured for the user
func (u *User) HasMethod(m Method) bool {
	return slices.Contains(u.MFAMethods, m)
}

// AddMethod adds m to the configured set and enables MFA
func (u *User) AddMethod(m Method) {
	if !u.HasMethod(m) {
		u.MFAMethods = append(u.MFAMethods, m)
	}
	u.MFAEnabled = true
}

// RemoveMethod removes m from the configured set, disabling MFA when none remain
func (u *User) RemoveMethod(m Method) {
	u.MFAMethods = slices.DeleteFunc(u.MFAMethods, func(x Method) bool { return x == m })
	if len(u.MFAMethods) == 0 {
		u.MFAEnabled = false
	}
}

// RequiresMFA reports whether a login must pass a second factor
func (u *User) RequiresMFA() bool {
	return u.MFAEnabled && len(u.MFAMethods) > 0
}

// HasTOTPSecret reports whether an authenticator app seed is provisioned
func (u *User) HasTOTPSecret() bool {
	return len(u.TOTPSecretEncrypted) > 0
}

// ClearOTPState drops the pending challenge, the selection and the failure counter
func (u *User) ClearOTPState() {
	u.PendingOTP = nil
	u.SelectedMethod = ""
	u.OTPAttempts = AttemptCounter{}
}
