package services

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/BradenHooton/mfagate/internal/auth"
	"github.com/BradenHooton/mfagate/internal/locks"
	"github.com/BradenHooton/mfagate/internal/models"
	pkgauth "github.com/BradenHooton/mfagate/pkg/auth"
	pkglogger "github.com/BradenHooton/mfagate/pkg/logger"
)

const (
	testPassword  = "GoodPass1"
	testJWTSecret = "test-secret-key-for-unit-tests-only"
)

// testPasswordHash is computed once since bcrypt at cost 12 is slow
var testPasswordHash = sync.OnceValue(func() string {
	hash, err := pkgauth.HashPassword(testPassword)
	if err != nil {
		panic(err)
	}
	return hash
})

// fakeClock is a manually advanced clock
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

// fakeUserRepository is a map-backed UserRepository storing copies so that
// services only observe what they persisted
type fakeUserRepository struct {
	mu          sync.Mutex
	users       map[string]*models.User
	updateCalls int
	UpdateErr   error
}

func newFakeUserRepository() *fakeUserRepository {
	return &fakeUserRepository{users: make(map[string]*models.User)}
}

func (r *fakeUserRepository) find(match func(*models.User) bool) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, models.ErrNotFound
}

func (r *fakeUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id })
}

func (r *fakeUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Username == username })
}

func (r *fakeUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if email == "" {
		return nil, models.ErrNotFound
	}
	return r.find(func(u *models.User) bool { return u.Email == email })
}

func (r *fakeUserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	if phone == "" {
		return nil, models.ErrNotFound
	}
	return r.find(func(u *models.User) bool { return u.Phone == phone })
}

func (r *fakeUserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	r.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

func (r *fakeUserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateCalls++
	if r.UpdateErr != nil {
		return nil, r.UpdateErr
	}
	if _, ok := r.users[user.ID]; !ok {
		return nil, models.ErrNotFound
	}
	r.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

// stored returns the persisted copy of a user
func (r *fakeUserRepository) stored(t *testing.T, id string) *models.User {
	t.Helper()
	u, err := r.GetByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func cloneUser(u *models.User) *models.User {
	c := *u
	c.MFAMethods = slices.Clone(u.MFAMethods)
	c.TrustedDevices = slices.Clone(u.TrustedDevices)
	c.TOTPSecretEncrypted = slices.Clone(u.TOTPSecretEncrypted)
	c.TOTPSecretNonce = slices.Clone(u.TOTPSecretNonce)
	if u.PendingOTP != nil {
		p := *u.PendingOTP
		c.PendingOTP = &p
	}
	if u.PendingReset != nil {
		p := *u.PendingReset
		c.PendingReset = &p
	}
	if u.PasswordChangedAt != nil {
		t := *u.PasswordChangedAt
		c.PasswordChangedAt = &t
	}
	return &c
}

type sentCode struct {
	To        string
	Code      string
	ExpiresAt time.Time
}

// MockEmailSender records deliveries; the Func fields override behaviour
type MockEmailSender struct {
	mu                      sync.Mutex
	OTPs                    []sentCode
	ResetCodes              []sentCode
	PasswordChanged         []string
	SendOTPFunc             func(ctx context.Context, to, code string, expiresAt time.Time) error
	SendResetCodeFunc       func(ctx context.Context, to, code string, expiresAt time.Time) error
	SendPasswordChangedFunc func(ctx context.Context, to string) error
}

func (m *MockEmailSender) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	m.mu.Lock()
	m.OTPs = append(m.OTPs, sentCode{to, code, expiresAt})
	m.mu.Unlock()
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, to, code, expiresAt)
	}
	return nil
}

func (m *MockEmailSender) SendResetCode(ctx context.Context, to, code string, expiresAt time.Time) error {
	m.mu.Lock()
	m.ResetCodes = append(m.ResetCodes, sentCode{to, code, expiresAt})
	m.mu.Unlock()
	if m.SendResetCodeFunc != nil {
		return m.SendResetCodeFunc(ctx, to, code, expiresAt)
	}
	return nil
}

func (m *MockEmailSender) SendPasswordChanged(ctx context.Context, to string) error {
	m.mu.Lock()
	m.PasswordChanged = append(m.PasswordChanged, to)
	m.mu.Unlock()
	if m.SendPasswordChangedFunc != nil {
		return m.SendPasswordChangedFunc(ctx, to)
	}
	return nil
}

func (m *MockEmailSender) lastOTP(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.OTPs, "no otp email sent")
	return m.OTPs[len(m.OTPs)-1].Code
}

func (m *MockEmailSender) lastResetCode(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.ResetCodes, "no reset email sent")
	return m.ResetCodes[len(m.ResetCodes)-1].Code
}

// MockSMSSender records text deliveries
type MockSMSSender struct {
	mu          sync.Mutex
	OTPs        []sentCode
	SendOTPFunc func(ctx context.Context, to, code string, expiresAt time.Time) error
}

func (m *MockSMSSender) SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error {
	m.mu.Lock()
	m.OTPs = append(m.OTPs, sentCode{to, code, expiresAt})
	m.mu.Unlock()
	if m.SendOTPFunc != nil {
		return m.SendOTPFunc(ctx, to, code, expiresAt)
	}
	return nil
}

func (m *MockSMSSender) lastOTP(t *testing.T) string {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.OTPs, "no otp sms sent")
	return m.OTPs[len(m.OTPs)-1].Code
}

// MockTOTPVerifier implements TOTPVerifier for testing
type MockTOTPVerifier struct {
	DecryptSecretFunc func(encrypted, nonce []byte) ([]byte, error)
	VerifyFunc        func(secret, code string, skew uint) (bool, error)
}

func (m *MockTOTPVerifier) DecryptSecret(encrypted, nonce []byte) ([]byte, error) {
	if m.DecryptSecretFunc != nil {
		return m.DecryptSecretFunc(encrypted, nonce)
	}
	return encrypted, nil
}

func (m *MockTOTPVerifier) Verify(secret, code string, skew uint) (bool, error) {
	if m.VerifyFunc != nil {
		return m.VerifyFunc(secret, code, skew)
	}
	return false, nil
}

// testEnv wires every service against in-memory fakes and one clock
type testEnv struct {
	clock      *fakeClock
	repo       *fakeUserRepository
	email      *MockEmailSender
	sms        *MockSMSSender
	totp       *MockTOTPVerifier
	tm         *auth.TokenManager
	devices    *DeviceTrust
	challenges *ChallengeService
	auth       *AuthService
	mfa        *MFAService
	reset      *PasswordResetService
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := discardLogger()
	auditLogger := pkglogger.NewAuditLogger(logger)
	locker := locks.NewKeyedMutex()

	env := &testEnv{
		clock: newFakeClock(),
		repo:  newFakeUserRepository(),
		email: &MockEmailSender{},
		sms:   &MockSMSSender{},
		totp:  &MockTOTPVerifier{},
		tm:    auth.NewTokenManager(testJWTSecret, 24*time.Hour, 15*time.Minute),
	}

	env.devices = NewDeviceTrust(30*24*time.Hour, 5)
	env.devices.now = env.clock.Now

	env.challenges = NewChallengeService(env.repo, env.email, env.sms, env.totp, ChallengeConfig{
		CodeTTL:         10 * time.Minute,
		DeliveryTimeout: time.Second,
		Lockout:         LockoutPolicy{MaxAttempts: 5, Cooldown: time.Minute, Rollover: true},
	}, logger)
	env.challenges.now = env.clock.Now

	env.auth = NewAuthService(env.repo, env.challenges, env.devices, env.tm, locker, nil, logger, auditLogger)

	enroller, err := auth.NewTOTPManager(make([]byte, 32), "mfagate-test")
	require.NoError(t, err)
	env.mfa = NewMFAService(env.repo, enroller, env.devices, locker, logger, auditLogger)

	env.reset = NewPasswordResetService(env.repo, env.email, env.tm, env.devices, locker, PasswordResetConfig{
		CodeTTL:         10 * time.Minute,
		DeliveryTimeout: time.Second,
		Lockout:         LockoutPolicy{MaxAttempts: 5},
	}, logger, auditLogger)
	env.reset.now = env.clock.Now

	return env
}

// seedUser stores a user whose password is testPassword
func (e *testEnv) seedUser(t *testing.T, username, email, phone string, methods ...models.Method) *models.User {
	t.Helper()
	user := &models.User{
		Username:     username,
		Email:        email,
		Phone:        phone,
		PasswordHash: testPasswordHash(),
	}
	for _, m := range methods {
		user.AddMethod(m)
	}
	if slices.Contains(methods, models.MethodApp) {
		user.TOTPSecretEncrypted = []byte("JBSWY3DPEHPK3PXP")
		user.TOTPSecretNonce = []byte("nonce")
	}
	created, err := e.repo.Create(context.Background(), user)
	require.NoError(t, err)
	return created
}
