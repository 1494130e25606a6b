package services

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BradenHooton/mfagate/internal/auth"
	"github.com/BradenHooton/mfagate/internal/locks"
	"github.com/BradenHooton/mfagate/internal/models"
	pkgauth "github.com/BradenHooton/mfagate/pkg/auth"
	pkglogger "github.com/BradenHooton/mfagate/pkg/logger"
)

var (
	dummyHashOnce sync.Once
	dummyHash     string
)

// dummyPasswordHash returns a bcrypt hash compared against when the username
// is unknown so both failure paths pay for one bcrypt comparison
func dummyPasswordHash() string {
	dummyHashOnce.Do(func() {
		hash, err := pkgauth.HashPassword("mfagate-timing-equalizer")
		if err == nil {
			dummyHash = hash
		}
	})
	return dummyHash
}

// AuthService drives the login state machine: credential check, method
// selection, challenge verification and session issuance
type AuthService struct {
	repo        UserRepository
	challenges  *ChallengeService
	devices     *DeviceTrust
	tm          *auth.TokenManager
	locker      locks.UserLocker
	timingDelay *auth.TimingDelay
	logger      *slog.Logger
	auditLogger *pkglogger.AuditLogger
}

// NewAuthService creates a new AuthService
func NewAuthService(
	repo UserRepository,
	challenges *ChallengeService,
	devices *DeviceTrust,
	tm *auth.TokenManager,
	locker locks.UserLocker,
	timingDelay *auth.TimingDelay,
	logger *slog.Logger,
	auditLogger *pkglogger.AuditLogger,
) *AuthService {
	return &AuthService{
		repo:        repo,
		challenges:  challenges,
		devices:     devices,
		tm:          tm,
		locker:      locker,
		timingDelay: timingDelay,
		logger:      logger,
		auditLogger: auditLogger,
	}
}

// Login checks credentials. Users without MFA, or presenting a live trusted
// device, receive a session token directly; everyone else receives the list
// of configured methods to continue with.
func (s *AuthService) Login(ctx context.Context, username, password, deviceID string) (*models.LoginResult, error) {
	start := time.Now()
	username = strings.TrimSpace(username)

	user, err := s.repo.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		s.logger.Error("failed to get user by username", slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	if user == nil {
		_ = pkgauth.ComparePassword(dummyPasswordHash(), password)
		s.rejectLogin(ctx, start, "", "invalid_credentials")
		return nil, models.ErrInvalidCredentials
	}

	if err := pkgauth.ComparePassword(user.PasswordHash, password); err != nil {
		s.rejectLogin(ctx, start, user.ID, "invalid_credentials")
		return nil, models.ErrInvalidCredentials
	}

	trusted := user.RequiresMFA() && s.devices.IsTrusted(user, deviceID)
	if !user.RequiresMFA() || trusted {
		token, err := s.tm.GenerateSessionToken(user.ID, user.Username)
		if err != nil {
			s.logger.Error("failed to generate session token", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}

		s.timingDelay.WaitFrom(ctx, start, true)
		s.logger.Info("user logged in", slog.String("user_id", user.ID), slog.Bool("device_trusted", trusted))
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType: pkglogger.EventLogin,
			UserID:    user.ID,
			Success:   true,
			Metadata:  map[string]string{"device_trusted": boolString(trusted)},
		})
		return &models.LoginResult{Token: token, DeviceTrusted: trusted}, nil
	}

	s.timingDelay.WaitFrom(ctx, start, true)
	s.logger.Info("login requires mfa", slog.String("user_id", user.ID))
	return &models.LoginResult{
		MFARequired: true,
		Methods:     user.MFAMethods,
		UserID:      user.ID,
		MaskedEmail: pkglogger.MaskEmail(user.Email),
		MaskedPhone: pkglogger.MaskPhone(user.Phone),
	}, nil
}

func (s *AuthService) rejectLogin(ctx context.Context, start time.Time, userID, reason string) {
	s.timingDelay.WaitFrom(ctx, start, false)
	s.logger.Info("login failed: invalid credentials")
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventLogin,
		UserID:        userID,
		Success:       false,
		FailureReason: reason,
	})
}

// RequestOTP records the selected method and, for email and SMS, issues a
// new challenge that replaces any pending one
func (s *AuthService) RequestOTP(ctx context.Context, userID, rawMethod string) (*models.ChallengeDescriptor, error) {
	method, err := models.ParseMethod(rawMethod)
	if err != nil {
		return nil, err
	}

	release, err := lockUser(ctx, s.locker, s.logger, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := loadUser(ctx, s.repo, s.logger, userID)
	if err != nil {
		return nil, err
	}

	if !user.HasMethod(method) {
		return nil, models.ErrInvalidMethod
	}
	user.SelectedMethod = method

	if !method.Delivered() {
		if _, err := s.repo.Update(ctx, user); err != nil {
			s.logger.Error("failed to persist method selection", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		return &models.ChallengeDescriptor{Method: method}, nil
	}

	descriptor, err := s.challenges.Issue(ctx, user, method)
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType:     pkglogger.EventOTPRequested,
		UserID:        user.ID,
		Method:        string(method),
		Success:       err == nil,
		FailureReason: failureReason(err),
	})
	if err != nil {
		return nil, err
	}
	return descriptor, nil
}

// VerifyOTP checks a submitted code. On success the challenge state is
// cleared, a trusted device is optionally minted and a session token issued.
func (s *AuthService) VerifyOTP(ctx context.Context, userID, code, rawMethod string, rememberDevice bool) (*models.VerifyResult, error) {
	release, err := lockUser(ctx, s.locker, s.logger, userID)
	if err != nil {
		return nil, err
	}
	defer release()

	user, err := loadUser(ctx, s.repo, s.logger, userID)
	if err != nil {
		return nil, err
	}

	method, err := resolveMethod(user, rawMethod)
	if err != nil {
		return nil, err
	}

	if err := s.challenges.Verify(user, code, method); err != nil {
		if isVerificationOutcome(err) {
			if _, updateErr := s.repo.Update(ctx, user); updateErr != nil {
				s.logger.Error("failed to persist attempt counter", slog.String("user_id", user.ID), slog.Any("error", updateErr))
				return nil, models.ErrInternalServer
			}
		}
		s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
			EventType:     pkglogger.EventOTPVerified,
			UserID:        user.ID,
			Method:        string(method),
			Success:       false,
			FailureReason: failureReason(err),
		})
		return nil, err
	}

	user.ClearOTPState()

	result := &models.VerifyResult{}
	if rememberDevice {
		deviceID, err := s.devices.Remember(user)
		if err != nil {
			s.logger.Error("failed to generate device token", slog.String("user_id", user.ID), slog.Any("error", err))
			return nil, models.ErrInternalServer
		}
		result.DeviceID = deviceID
	}

	if _, err := s.repo.Update(ctx, user); err != nil {
		s.logger.Error("failed to persist verified challenge", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}

	token, err := s.tm.GenerateSessionToken(user.ID, user.Username)
	if err != nil {
		s.logger.Error("failed to generate session token", slog.String("user_id", user.ID), slog.Any("error", err))
		return nil, models.ErrInternalServer
	}
	result.Token = token

	s.logger.Info("otp verified", slog.String("user_id", user.ID), slog.String("method", string(method)))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventOTPVerified,
		UserID:    user.ID,
		Method:    string(method),
		Success:   true,
		Metadata:  map[string]string{"device_remembered": boolString(rememberDevice)},
	})
	return result, nil
}

// resolveMethod picks the method to verify against: the explicit one, then
// the last selection, then the only configured method
func resolveMethod(user *models.User, raw string) (models.Method, error) {
	if raw != "" {
		method, err := models.ParseMethod(raw)
		if err != nil {
			return "", err
		}
		if !user.HasMethod(method) {
			return "", models.ErrInvalidMethod
		}
		return method, nil
	}

	if user.SelectedMethod != "" && user.HasMethod(user.SelectedMethod) {
		return user.SelectedMethod, nil
	}
	if len(user.MFAMethods) == 1 {
		return user.MFAMethods[0], nil
	}
	return "", models.ErrMethodRequired
}

// Register creates a user after checking the password policy and the unique
// identity fields
func (s *AuthService) Register(ctx context.Context, username, password, email, phone string) (string, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)

	if err := pkgauth.ValidatePassword(password); err != nil {
		return "", &PolicyError{Reasons: policyReasons(err)}
	}

	if err := s.checkDuplicates(ctx, username, email, phone); err != nil {
		return "", err
	}

	hash, err := pkgauth.HashPassword(password)
	if err != nil {
		s.logger.Error("failed to hash password", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	created, err := s.repo.Create(ctx, &models.User{
		Username:     username,
		Email:        email,
		Phone:        phone,
		PasswordHash: hash,
	})
	if err != nil {
		if errors.Is(err, models.ErrDuplicateField) {
			return "", err
		}
		s.logger.Error("failed to create user", slog.Any("error", err))
		return "", models.ErrInternalServer
	}

	s.logger.Info("user registered", slog.String("user_id", created.ID))
	s.auditLogger.LogAuthAttempt(ctx, pkglogger.AuditEvent{
		EventType: pkglogger.EventRegistered,
		UserID:    created.ID,
		Success:   true,
	})
	return created.ID, nil
}

func (s *AuthService) checkDuplicates(ctx context.Context, username, email, phone string) error {
	checks := []struct {
		field  string
		value  string
		lookup func(context.Context, string) (*models.User, error)
	}{
		{"username", username, s.repo.GetByUsername},
		{"email", email, s.repo.GetByEmail},
		{"phone", phone, s.repo.GetByPhone},
	}

	for _, c := range checks {
		if c.value == "" {
			continue
		}
		taken, err := s.taken(ctx, c.lookup, c.value)
		if err != nil {
			return err
		}
		if taken {
			return &models.DuplicateFieldError{Field: c.field}
		}
	}
	return nil
}

// CheckAvailability reports which of the supplied identity fields are free
func (s *AuthService) CheckAvailability(ctx context.Context, username, email, phone string) (*models.Availability, error) {
	username = strings.TrimSpace(username)
	email = strings.ToLower(strings.TrimSpace(email))
	phone = strings.TrimSpace(phone)

	if username == "" && email == "" && phone == "" {
		return nil, models.ErrBadRequest
	}

	result := &models.Availability{}
	fields := []struct {
		value  string
		lookup func(context.Context, string) (*models.User, error)
		target **bool
	}{
		{username, s.repo.GetByUsername, &result.Username},
		{email, s.repo.GetByEmail, &result.Email},
		{phone, s.repo.GetByPhone, &result.Phone},
	}

	for _, f := range fields {
		if f.value == "" {
			continue
		}
		taken, err := s.taken(ctx, f.lookup, f.value)
		if err != nil {
			return nil, err
		}
		available := !taken
		*f.target = &available
	}
	return result, nil
}

func (s *AuthService) taken(ctx context.Context, lookup func(context.Context, string) (*models.User, error), value string) (bool, error) {
	_, err := lookup(ctx, value)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	s.logger.Error("failed to check identity field", slog.Any("error", err))
	return false, models.ErrInternalServer
}
