package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/mfagate/internal/models"
)

func newTestDeviceTrust() (*DeviceTrust, *fakeClock) {
	clock := newFakeClock()
	d := NewDeviceTrust(30*24*time.Hour, 5)
	d.now = clock.Now
	return d, clock
}

func TestDeviceTrust_RememberAndMatch(t *testing.T) {
	d, clock := newTestDeviceTrust()
	user := &models.User{}

	token, err := d.Remember(user)
	require.NoError(t, err)
	require.Len(t, user.TrustedDevices, 1)

	device := user.TrustedDevices[0]
	assert.NotEqual(t, token, device.TokenHash, "raw token must not be stored")
	assert.Equal(t, token[:8], device.Prefix)
	assert.Equal(t, clock.Now().Add(30*24*time.Hour), device.ExpiresAt)

	assert.True(t, d.IsTrusted(user, token))
	assert.False(t, d.IsTrusted(user, ""))
	assert.False(t, d.IsTrusted(user, token+"x"))
}

func TestDeviceTrust_ExpiredDeviceNotTrusted(t *testing.T) {
	d, clock := newTestDeviceTrust()
	user := &models.User{}

	token, err := d.Remember(user)
	require.NoError(t, err)

	clock.Advance(30*24*time.Hour - time.Millisecond)
	assert.True(t, d.IsTrusted(user, token))

	clock.Advance(time.Millisecond)
	assert.False(t, d.IsTrusted(user, token))
}

func TestDeviceTrust_SixthDeviceEvictsOldest(t *testing.T) {
	d, clock := newTestDeviceTrust()
	user := &models.User{}

	var tokens []string
	for range 6 {
		token, err := d.Remember(user)
		require.NoError(t, err)
		tokens = append(tokens, token)
		clock.Advance(time.Minute)
	}

	require.Len(t, user.TrustedDevices, 5)
	assert.False(t, d.IsTrusted(user, tokens[0]))
	for _, token := range tokens[1:] {
		assert.True(t, d.IsTrusted(user, token))
	}
}

func TestDeviceTrust_RememberPrunesExpired(t *testing.T) {
	d, clock := newTestDeviceTrust()
	user := &models.User{}

	_, err := d.Remember(user)
	require.NoError(t, err)
	_, err = d.Remember(user)
	require.NoError(t, err)

	clock.Advance(31 * 24 * time.Hour)
	fresh, err := d.Remember(user)
	require.NoError(t, err)

	require.Len(t, user.TrustedDevices, 1)
	assert.True(t, d.IsTrusted(user, fresh))
	assert.Len(t, d.Live(user), 1)
}

func TestDeviceTrust_RevokeAll(t *testing.T) {
	d, _ := newTestDeviceTrust()
	user := &models.User{}

	token, err := d.Remember(user)
	require.NoError(t, err)

	d.RevokeAll(user)

	assert.Empty(t, user.TrustedDevices)
	assert.False(t, d.IsTrusted(user, token))
}
