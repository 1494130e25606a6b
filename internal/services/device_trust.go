package services

import (
	"slices"
	"time"

	"github.com/BradenHooton/mfagate/internal/models"
	pkgauth "github.com/BradenHooton/mfagate/pkg/auth"
)

const devicePrefixLength = 8

// DeviceTrust manages the "remember this device" exemption stored on the user
type DeviceTrust struct {
	ttl        time.Duration
	maxDevices int
	now        func() time.Time
}

func NewDeviceTrust(ttl time.Duration, maxDevices int) *DeviceTrust {
	return &DeviceTrust{ttl: ttl, maxDevices: maxDevices, now: time.Now}
}

// IsTrusted reports whether deviceID matches a live trusted device
func (d *DeviceTrust) IsTrusted(user *models.User, deviceID string) bool {
	if deviceID == "" {
		return false
	}
	now := d.now()
	trusted := false
	for _, device := range user.TrustedDevices {
		// Check every entry so timing does not depend on the match position
		if pkgauth.MatchesHash(deviceID, device.TokenHash) && device.Live(now) {
			trusted = true
		}
	}
	return trusted
}

// Remember mints a new device token, records its hash and returns the raw
// token. Expired entries are dropped and only the newest maxDevices are kept.
func (d *DeviceTrust) Remember(user *models.User) (string, error) {
	token, err := pkgauth.GenerateDeviceToken()
	if err != nil {
		return "", err
	}

	now := d.now()
	devices := d.Live(user)
	devices = append(devices, models.TrustedDevice{
		TokenHash: pkgauth.HashSecret(token),
		Prefix:    token[:devicePrefixLength],
		CreatedAt: now,
		ExpiresAt: now.Add(d.ttl),
	})

	slices.SortStableFunc(devices, func(a, b models.TrustedDevice) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	if len(devices) > d.maxDevices {
		devices = devices[len(devices)-d.maxDevices:]
	}

	user.TrustedDevices = devices
	return token, nil
}

// RevokeAll drops every trusted device
func (d *DeviceTrust) RevokeAll(user *models.User) {
	user.TrustedDevices = nil
}

// Live returns a copy of the non-expired trusted devices
func (d *DeviceTrust) Live(user *models.User) []models.TrustedDevice {
	now := d.now()
	live := make([]models.TrustedDevice, 0, len(user.TrustedDevices))
	for _, device := range user.TrustedDevices {
		if device.Live(now) {
			live = append(live, device)
		}
	}
	return live
}
