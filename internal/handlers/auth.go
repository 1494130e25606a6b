package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/BradenHooton/mfagate/internal/models"
	pkghttp "github.com/BradenHooton/mfagate/pkg/http"
)

// AuthServiceInterface defines the interface for the login flow
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password, deviceID string) (*models.LoginResult, error)
	RequestOTP(ctx context.Context, userID, method string) (*models.ChallengeDescriptor, error)
	VerifyOTP(ctx context.Context, userID, code, method string, rememberDevice bool) (*models.VerifyResult, error)
	Register(ctx context.Context, username, password, email, phone string) (string, error)
	CheckAvailability(ctx context.Context, username, email, phone string) (*models.Availability, error)
}

// PasswordResetServiceInterface defines the interface for the reset flow
type PasswordResetServiceInterface interface {
	RequestReset(ctx context.Context, email string) error
	VerifyResetCode(ctx context.Context, email, code string) (string, error)
	ResetPassword(ctx context.Context, resetToken, email, newPassword string) error
}

// AuthHandler handles the public authentication endpoints
type AuthHandler struct {
	service      AuthServiceInterface
	resetService PasswordResetServiceInterface
	logger       *slog.Logger
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, resetService PasswordResetServiceInterface, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		service:      service,
		resetService: resetService,
		logger:       logger,
	}
}

// Request DTOs

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required"`
	Email    string `json:"email" validate:"omitempty,email"`
	Phone    string `json:"phone" validate:"omitempty,e164"`
}

// LoginRequest represents the request body for login
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
	DeviceID string `json:"device_id" validate:"omitempty,max=128"`
}

// RequestOTPRequest selects the method for the pending login
type RequestOTPRequest struct {
	UserID string `json:"user_id" validate:"required"`
	Method string `json:"method" validate:"required"`
}

// VerifyOTPRequest submits a one-time code for the pending login
type VerifyOTPRequest struct {
	UserID         string `json:"user_id" validate:"required"`
	Code           string `json:"code" validate:"required,len=6,numeric"`
	Method         string `json:"method"`
	RememberDevice bool   `json:"remember_device"`
}

// ForgotPasswordRequest starts a password reset
type ForgotPasswordRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// VerifyResetCodeRequest exchanges a reset code for a reset token
type VerifyResetCodeRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

// ResetPasswordRequest sets a new password with a reset token
type ResetPasswordRequest struct {
	ResetToken  string `json:"reset_token" validate:"required"`
	Email       string `json:"email" validate:"required,email"`
	NewPassword string `json:"new_password" validate:"required"`
}

// Response DTOs

// RegisterResponse is returned after a successful registration
type RegisterResponse struct {
	UserID string `json:"user_id"`
}

// ResetTokenResponse carries the short lived reset token
type ResetTokenResponse struct {
	ResetToken string `json:"reset_token"`
}

// MessageResponse is a plain acknowledgement
type MessageResponse struct {
	Message string `json:"message"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	userID, err := h.service.Register(r.Context(), req.Username, req.Password, req.Email, req.Phone)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusCreated, RegisterResponse{UserID: userID})
}

// CheckAvailability handles GET /auth/availability
func (h *AuthHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	result, err := h.service.CheckAvailability(r.Context(), query.Get("username"), query.Get("email"), query.Get("phone"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// Login handles POST /auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	result, err := h.service.Login(r.Context(), req.Username, req.Password, req.DeviceID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// RequestOTP handles POST /auth/request-otp
func (h *AuthHandler) RequestOTP(w http.ResponseWriter, r *http.Request) {
	var req RequestOTPRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	descriptor, err := h.service.RequestOTP(r.Context(), req.UserID, req.Method)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, descriptor)
}

// VerifyOTP handles POST /auth/verify-otp
func (h *AuthHandler) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	result, err := h.service.VerifyOTP(r.Context(), req.UserID, req.Code, req.Method, req.RememberDevice)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, result)
}

// ForgotPassword handles POST /auth/forgot-password. The response never
// reveals whether the email is registered.
func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var req ForgotPasswordRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	if err := h.resetService.RequestReset(r.Context(), req.Email); err != nil {
		h.logger.Error("password reset request failed", slog.Any("error", err))
	}

	pkghttp.WriteJSON(w, http.StatusAccepted, MessageResponse{
		Message: "If an account exists for this email, a reset code has been sent",
	})
}

// VerifyResetCode handles POST /auth/verify-reset-code
func (h *AuthHandler) VerifyResetCode(w http.ResponseWriter, r *http.Request) {
	var req VerifyResetCodeRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	token, err := h.resetService.VerifyResetCode(r.Context(), req.Email, req.Code)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, ResetTokenResponse{ResetToken: token})
}

// ResetPassword handles POST /auth/reset-password
func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}

	if err := h.resetService.ResetPassword(r.Context(), req.ResetToken, req.Email, req.NewPassword); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	pkghttp.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Password has been reset"})
}
