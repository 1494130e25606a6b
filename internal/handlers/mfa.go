package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/mfagate/internal/auth"
	"github.com/BradenHooton/mfagate/internal/models"
	pkghttp "github.com/BradenHooton/mfagate/pkg/http"
)

// MFAServiceInterface defines the interface for MFA configuration
type MFAServiceInterface interface {
	EnableEmail(ctx context.Context, userID string) (*models.MFAConfiguration, error)
	EnableSMS(ctx context.Context, userID, phone string) (*models.MFAConfiguration, error)
	EnableApp(ctx context.Context, userID string) (*models.AppEnrollment, error)
	DisableMethod(ctx context.Context, userID, method string) (*models.MFAConfiguration, error)
	Methods(ctx context.Context, userID string) (*models.MFAConfiguration, error)
	TrustedDevices(ctx context.Context, userID string) ([]models.TrustedDeviceInfo, error)
	RevokeAllDevices(ctx context.Context, userID string) error
}

// MFAHandler handles MFA configuration requests for the authenticated user
type MFAHandler struct {
	service MFAServiceInterface
	logger  *slog.Logger
}

// NewMFAHandler creates a new MFA handler
func NewMFAHandler(service MFAServiceInterface, logger *slog.Logger) *MFAHandler {
	return &MFAHandler{
		service: service,
		logger:  logger,
	}
}

// currentUserID returns the session subject, writing a 401 when absent
func currentUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	claims := auth.GetUserFromContext(r)
	if claims == nil || claims.UserID == "" {
		pkghttp.WriteUnauthorized(w, "Unauthorized")
		return "", false
	}
	return claims.UserID, true
}

// EnableEmail handles POST /mfa/email/enable
func (h *MFAHandler) EnableEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	config, err := h.service.EnableEmail(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, config)
}

// EnableSMS handles POST /mfa/sms/enable
func (h *MFAHandler) EnableSMS(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req EnableSMSRequest
	if !decodeRequest(w, r, &req, true) {
		return
	}

	config, err := h.service.EnableSMS(r.Context(), userID, req.Phone)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, config)
}

// EnableApp handles POST /mfa/app/enable
func (h *MFAHandler) EnableApp(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	enrollment, err := h.service.EnableApp(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	pkghttp.WriteJSON(w, http.StatusOK, enrollment)
}

// DisableMethod handles POST /mfa/disable
func (h *MFAHandler) DisableMethod(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	var req DisableMethodRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	config, err := h.service.DisableMethod(r.Context(), userID, req.Method)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, config)
}

// Methods handles GET /mfa/methods
func (h *MFAHandler) Methods(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	config, err := h.service.Methods(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, config)
}

// TrustedDevices handles GET /mfa/trusted-devices
func (h *MFAHandler) TrustedDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	devices, err := h.service.TrustedDevices(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, TrustedDevicesResponse{Devices: devices})
}

// RevokeAllDevices handles POST /mfa/trusted-devices/revoke-all
func (h *MFAHandler) RevokeAllDevices(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.RevokeAllDevices(r.Context(), userID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "All trusted devices revoked"})
}
