package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/BradenHooton/mfagate/internal/locks"
	"github.com/BradenHooton/mfagate/internal/models"
	pkglogger "github.com/BradenHooton/mfagate/pkg/logger"
)

// MFAService handles enabling, disabling and listing MFA methods and trusted devices
type MFAService struct {
	repo        UserRepository
	enroller    TOTPEnroller
	devices     *DeviceTrust
	locker      locks.UserLocker
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewMFAService creates a new MFA service
func NewMFAService(
	repo UserRepository,
	enroller TOTPEnroller,
	devices *DeviceTrust,
	locker locks.UserLocker,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *MFAService {
	return &MFAService{
		repo:        repo,
		enroller:    enroller,
		devices:     devices,
		locker:      locker,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// mutate loads the user under its lock, applies fn and persists the result
func (s *MFAService) mutate(ctx context.Context, userID string, fn func(*models.User) error) (*models.User, error) {
	release, err := lockUser(ctx, s.locker, s.logger, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := loadUser(ctx, s.repo, s.logger, userID)
	if err != nil {
		return nil, err
	}

	if err := fn(user); err != nil {
		return nil, err
	}

	if _, err := s.repo.Update(ctx, user); err != nil {
		if errors.Is(err, models.ErrDuplicateField) {
			return nil, err
		}
		s.logger.Error("failed to update mfa settings", slog.String("user_id", userID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	return user, nil
}

// EnableEmail turns on email codes for a user with an email on file
func (s *MFAService) EnableEmail(ctx context.Context, userID string) (*models.MFAConfiguration, error) {
	user, err := s.mutate(ctx, userID, func(u *models.User) error {
		if u.Email == "" {
			return models.ErrMissingPrerequisite
		}
		u.AddMethod(models.MethodEmail)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logMethodChange(ctx, pkglogger.EventMFAEnabled, user.ID, models.MethodEmail)
	return configurationOf(user), nil
}

// EnableSMS turns on SMS codes. A supplied phone replaces the one on file
// and must not belong to another account.
func (s *MFAService) EnableSMS(ctx context.Context, userID, phone string) (*models.MFAConfiguration, error) {
	phone = strings.TrimSpace(phone)

	user, err := s.mutate(ctx, userID, func(u *models.User) error {
		if phone == "" {
			phone = u.Phone
		}
		if phone == "" {
			return models.ErrMissingPrerequisite
		}

		if phone != u.Phone {
			owner, err := s.repo.GetByPhone(ctx, phone)
			switch {
			case err == nil && owner.ID != u.ID:
				return &models.DuplicateFieldError{Field: "phone"}
			case err != nil && !errors.Is(err, models.ErrNotFound):
				s.logger.Error("failed to check phone", slog.Any("error", err))
				return models.ErrInternalServer
			}
			u.Phone = phone
		}

		u.AddMethod(models.MethodSMS)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logMethodChange(ctx, pkglogger.EventMFAEnabled, user.ID, models.MethodSMS)
	return configurationOf(user), nil
}

// EnableApp provisions a new authenticator seed, replacing any previous one.
// The plaintext secret is only returned here.
func (s *MFAService) EnableApp(ctx context.Context, userID string) (*models.AppEnrollment, error) {
	var enrollment *models.AppEnrollment

	user, err := s.mutate(ctx, userID, func(u *models.User) error {
		accountName := u.Email
		if accountName == "" {
			accountName = u.Username
		}

		generated, err := s.enroller.GenerateSecretWithQR(accountName)
		if err != nil {
			s.logger.Error("failed to generate totp secret", slog.String("user_id", u.ID), slog.Any("error", err))
			return models.ErrInternalServer
		}

		u.TOTPSecretEncrypted = generated.EncryptedSecret
		u.TOTPSecretNonce = generated.Nonce
		u.AddMethod(models.MethodApp)

		enrollment = &models.AppEnrollment{
			Secret:     generated.Secret,
			OTPAuthURL: generated.URL,
			QRCode:     generated.QRCodeDataURL,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	enrollment.MFAConfiguration = *configurationOf(user)
	s.logMethodChange(ctx, pkglogger.EventMFAEnabled, user.ID, models.MethodApp)
	return enrollment, nil
}

// DisableMethod removes one method. Removing the last one turns MFA off.
func (s *MFAService) DisableMethod(ctx context.Context, userID, rawMethod string) (*models.MFAConfiguration, error) {
	method, err := models.ParseMethod(rawMethod)
	if err != nil {
		return nil, err
	}

	user, err := s.mutate(ctx, userID, func(u *models.User) error {
		if !u.HasMethod(method) {
			return models.ErrMethodNotEnabled
		}

		u.RemoveMethod(method)
		if method == models.MethodApp {
			u.TOTPSecretEncrypted = nil
			u.TOTPSecretNonce = nil
		}
		if u.PendingOTP != nil && u.PendingOTP.Method == method {
			u.PendingOTP = nil
		}
		if u.SelectedMethod == method {
			u.SelectedMethod = ""
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logMethodChange(ctx, pkglogger.EventMFADisabled, user.ID, method)
	return configurationOf(user), nil
}

// Methods returns the current MFA configuration
func (s *MFAService) Methods(ctx context.Context, userID string) (*models.MFAConfiguration, error) {
	user, err := loadUser(ctx, s.repo, s.logger, userID)
	if err != nil {
		return nil, err
	}
	return configurationOf(user), nil
}

// TrustedDevices lists the live trusted devices with redacted identifiers
func (s *MFAService) TrustedDevices(ctx context.Context, userID string) ([]models.TrustedDeviceInfo, error) {
	user, err := loadUser(ctx, s.repo, s.logger, userID)
	if err != nil {
		return nil, err
	}

	live := s.devices.Live(user)
	devices := make([]models.TrustedDeviceInfo, 0, len(live))
	for _, d := range live {
		devices = append(devices, models.TrustedDeviceInfo{
			DeviceID:  d.Prefix + pkglogger.Mask,
			CreatedAt: d.CreatedAt,
			ExpiresAt: d.ExpiresAt,
		})
	}
	return devices, nil
}

// RevokeAllDevices forgets every trusted device of the user
func (s *MFAService) RevokeAllDevices(ctx context.Context, userID string) error {
	user, err := s.mutate(ctx, userID, func(u *models.User) error {
		s.devices.RevokeAll(u)
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("trusted devices revoked", slog.String("user_id", user.ID))
	s.auditLogger.LogMFAChange(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventDevicesRevoked,
		UserID:    user.ID,
	})
	return nil
}

func (s *MFAService) logMethodChange(ctx context.Context, eventType, userID string, method models.Method) {
	s.logger.Info("mfa method changed",
		slog.String("user_id", userID),
		slog.String("event", eventType),
		slog.String("method", string(method)))
	s.auditLogger.LogMFAChange(ctx, pkglogger.AuditEvent{
		EventType: eventType,
		UserID:    userID,
		Method:    string(method),
	})
}

func configurationOf(user *models.User) *models.MFAConfiguration {
	methods := user.MFAMethods
	if methods == nil {
		methods = []models.Method{}
	}
	return &models.MFAConfiguration{
		MFAEnabled:  user.MFAEnabled,
		Methods:     methods,
		MaskedEmail: pkglogger.MaskEmail(user.Email),
		MaskedPhone: pkglogger.MaskPhone(user.Phone),
	}
}
