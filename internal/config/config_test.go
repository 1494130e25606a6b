package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("JWT_SECRET", "test-secret-32-characters-long!")
	t.Setenv("DB_PASSWORD", "test")
	t.Setenv("TOTP_ENCRYPTION_KEY", testEncryptionKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionTokenExpiry)
	assert.Equal(t, 15*time.Minute, cfg.Auth.ResetTokenExpiry)
	assert.Equal(t, 10*time.Minute, cfg.MFA.CodeTTL)
	assert.Equal(t, 5, cfg.MFA.MaxAttempts)
	assert.Equal(t, 60*time.Second, cfg.MFA.OTPLockoutCooldown)
	assert.Equal(t, 30*24*time.Hour, cfg.MFA.TrustedDeviceTTL)
	assert.Equal(t, 5, cfg.MFA.MaxTrustedDevices)
	assert.Equal(t, 10*time.Second, cfg.MFA.DeliveryTimeout)
	assert.Len(t, cfg.MFA.TOTPEncryptionKey, 32)
	assert.False(t, cfg.Redis.Enabled())
	assert.False(t, cfg.SMS.Enabled)
}

func TestLoad_ServerTimeouts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SERVER_READ_TIMEOUT", "30s")
	t.Setenv("SERVER_WRITE_TIMEOUT", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "invalid duration falls back to default")
	assert.Equal(t, 60*time.Second, cfg.Server.IdleTimeout)
}

func TestLoad_CustomCooldown(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OTP_LOCKOUT_COOLDOWN", "15m")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 15*time.Minute, cfg.MFA.OTPLockoutCooldown)
	assert.True(t, cfg.Redis.Enabled())
}

func TestLoad_MissingJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("DB_PASSWORD", "test")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET is required")
}

func TestLoad_MissingEncryptionKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOTP_ENCRYPTION_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "TOTP_ENCRYPTION_KEY")
}

func TestLoad_ShortEncryptionKey(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("TOTP_ENCRYPTION_KEY", "0011")

	_, err := Load()
	assert.ErrorContains(t, err, "32 bytes")
}

func TestLoad_SMSRequiresCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SMS_ENABLED", "true")

	_, err := Load()
	assert.ErrorContains(t, err, "SMS_ACCOUNT_SID")
}

func TestValidateJWTSecret(t *testing.T) {
	assert.NoError(t, validateJWTSecret("sixteen-chars-ok", "development"))
	assert.Error(t, validateJWTSecret("short", "development"))
	assert.Error(t, validateJWTSecret("sixteen-chars-ok", "production"))
	assert.NoError(t, validateJWTSecret(strings.Repeat("k", 32), "production"))
}

func TestParseAllowedOrigins(t *testing.T) {
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com")
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, parseAllowedOrigins("production"))

	t.Setenv("ALLOWED_ORIGINS", "")
	assert.Empty(t, parseAllowedOrigins("production"))
	assert.Contains(t, parseAllowedOrigins("development"), "http://localhost:3000")
}
