package handlers

import "github.com/BradenHooton/mfagate/internal/models"

// EnableSMSRequest optionally supplies the phone number to text codes to
type EnableSMSRequest struct {
	Phone string `json:"phone" validate:"omitempty,e164"`
}

// DisableMethodRequest names the method to turn off
type DisableMethodRequest struct {
	Method string `json:"method" validate:"required"`
}

// TrustedDevicesResponse lists trusted devices with redacted IDs
type TrustedDevicesResponse struct {
	Devices []models.TrustedDeviceInfo `json:"devices"`
}
