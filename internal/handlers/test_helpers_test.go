package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BradenHooton/mfagate/internal/auth"
	"github.com/BradenHooton/mfagate/internal/models"
	pkghttp "github.com/BradenHooton/mfagate/pkg/http"
)

// NewTestRequest creates an HTTP request with JSON body for testing
func NewTestRequest(t *testing.T, method, url string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, url, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// WithAuthContext adds session claims to the request context
func WithAuthContext(req *http.Request, userID string) *http.Request {
	claims := &models.TokenClaims{
		Type:     models.TokenTypeSession,
		UserID:   userID,
		Username: "tester",
	}
	return req.WithContext(auth.WithClaims(req.Context(), claims))
}

// AssertJSONResponse checks that response has correct status and decodes JSON body
func AssertJSONResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, target any) {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"), "Content-Type should be application/json")

	if target != nil {
		err := json.Unmarshal(w.Body.Bytes(), target)
		assert.NoError(t, err, "Failed to decode response JSON")
	}
}

// AssertErrorResponse checks that response is a valid error response
func AssertErrorResponse(t *testing.T, w *httptest.ResponseRecorder, expectedStatus int, expectedError string) pkghttp.ErrorResponse {
	assert.Equal(t, expectedStatus, w.Code, "Response status mismatch")

	var resp pkghttp.ErrorResponse
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	assert.NoError(t, err, "Failed to decode error response")
	assert.Equal(t, expectedError, resp.Error, "Error code mismatch")
	assert.NotEmpty(t, resp.Message, "Error message should not be empty")
	return resp
}

// NewTestLogger discards all output
func NewTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockAuthService implements AuthServiceInterface for testing
type MockAuthService struct {
	LoginFunc             func(ctx context.Context, username, password, deviceID string) (*models.LoginResult, error)
	RequestOTPFunc        func(ctx context.Context, userID, method string) (*models.ChallengeDescriptor, error)
	VerifyOTPFunc         func(ctx context.Context, userID, code, method string, rememberDevice bool) (*models.VerifyResult, error)
	RegisterFunc          func(ctx context.Context, username, password, email, phone string) (string, error)
	CheckAvailabilityFunc func(ctx context.Context, username, email, phone string) (*models.Availability, error)
}

func (m *MockAuthService) Login(ctx context.Context, username, password, deviceID string) (*models.LoginResult, error) {
	if m.LoginFunc == nil {
		return nil, models.ErrInvalidCredentials
	}
	return m.LoginFunc(ctx, username, password, deviceID)
}

func (m *MockAuthService) RequestOTP(ctx context.Context, userID, method string) (*models.ChallengeDescriptor, error) {
	if m.RequestOTPFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.RequestOTPFunc(ctx, userID, method)
}

func (m *MockAuthService) VerifyOTP(ctx context.Context, userID, code, method string, rememberDevice bool) (*models.VerifyResult, error) {
	if m.VerifyOTPFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.VerifyOTPFunc(ctx, userID, code, method, rememberDevice)
}

func (m *MockAuthService) Register(ctx context.Context, username, password, email, phone string) (string, error) {
	if m.RegisterFunc == nil {
		return "", models.ErrInternalServer
	}
	return m.RegisterFunc(ctx, username, password, email, phone)
}

func (m *MockAuthService) CheckAvailability(ctx context.Context, username, email, phone string) (*models.Availability, error) {
	if m.CheckAvailabilityFunc == nil {
		return nil, models.ErrBadRequest
	}
	return m.CheckAvailabilityFunc(ctx, username, email, phone)
}

// MockPasswordResetService implements PasswordResetServiceInterface for testing
type MockPasswordResetService struct {
	RequestResetFunc    func(ctx context.Context, email string) error
	VerifyResetCodeFunc func(ctx context.Context, email, code string) (string, error)
	ResetPasswordFunc   func(ctx context.Context, resetToken, email, newPassword string) error
}

func (m *MockPasswordResetService) RequestReset(ctx context.Context, email string) error {
	if m.RequestResetFunc == nil {
		return nil
	}
	return m.RequestResetFunc(ctx, email)
}

func (m *MockPasswordResetService) VerifyResetCode(ctx context.Context, email, code string) (string, error) {
	if m.VerifyResetCodeFunc == nil {
		return "", models.ErrExpired
	}
	return m.VerifyResetCodeFunc(ctx, email, code)
}

func (m *MockPasswordResetService) ResetPassword(ctx context.Context, resetToken, email, newPassword string) error {
	if m.ResetPasswordFunc == nil {
		return models.ErrTokenInvalid
	}
	return m.ResetPasswordFunc(ctx, resetToken, email, newPassword)
}

// MockMFAService implements MFAServiceInterface for testing
type MockMFAService struct {
	EnableEmailFunc      func(ctx context.Context, userID string) (*models.MFAConfiguration, error)
	EnableSMSFunc        func(ctx context.Context, userID, phone string) (*models.MFAConfiguration, error)
	EnableAppFunc        func(ctx context.Context, userID string) (*models.AppEnrollment, error)
	DisableMethodFunc    func(ctx context.Context, userID, method string) (*models.MFAConfiguration, error)
	MethodsFunc          func(ctx context.Context, userID string) (*models.MFAConfiguration, error)
	TrustedDevicesFunc   func(ctx context.Context, userID string) ([]models.TrustedDeviceInfo, error)
	RevokeAllDevicesFunc func(ctx context.Context, userID string) error
}

func (m *MockMFAService) EnableEmail(ctx context.Context, userID string) (*models.MFAConfiguration, error) {
	if m.EnableEmailFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.EnableEmailFunc(ctx, userID)
}

func (m *MockMFAService) EnableSMS(ctx context.Context, userID, phone string) (*models.MFAConfiguration, error) {
	if m.EnableSMSFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.EnableSMSFunc(ctx, userID, phone)
}

func (m *MockMFAService) EnableApp(ctx context.Context, userID string) (*models.AppEnrollment, error) {
	if m.EnableAppFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.EnableAppFunc(ctx, userID)
}

func (m *MockMFAService) DisableMethod(ctx context.Context, userID, method string) (*models.MFAConfiguration, error) {
	if m.DisableMethodFunc == nil {
		return nil, models.ErrMethodNotEnabled
	}
	return m.DisableMethodFunc(ctx, userID, method)
}

func (m *MockMFAService) Methods(ctx context.Context, userID string) (*models.MFAConfiguration, error) {
	if m.MethodsFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.MethodsFunc(ctx, userID)
}

func (m *MockMFAService) TrustedDevices(ctx context.Context, userID string) ([]models.TrustedDeviceInfo, error) {
	if m.TrustedDevicesFunc == nil {
		return nil, models.ErrNotFound
	}
	return m.TrustedDevicesFunc(ctx, userID)
}

func (m *MockMFAService) RevokeAllDevices(ctx context.Context, userID string) error {
	if m.RevokeAllDevicesFunc == nil {
		return models.ErrNotFound
	}
	return m.RevokeAllDevicesFunc(ctx, userID)
}
