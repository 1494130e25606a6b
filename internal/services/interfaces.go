package services

import (
	"context"
	"time"

	"github.com/BradenHooton/mfagate/internal/auth"
	"github.com/BradenHooton/mfagate/internal/models"
)

// UserRepository defines the storage operations the services rely on
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByPhone(ctx context.Context, phone string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	Update(ctx context.Context, user *models.User) (*models.User, error)
}

// EmailSender delivers codes and notices by email
type EmailSender interface {
	SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error
	SendResetCode(ctx context.Context, to, code string, expiresAt time.Time) error
	SendPasswordChanged(ctx context.Context, to string) error
}

// SMSSender delivers codes by text message
type SMSSender interface {
	SendOTP(ctx context.Context, to, code string, expiresAt time.Time) error
}

// TOTPVerifier checks authenticator app codes against a stored seed
type TOTPVerifier interface {
	DecryptSecret(encrypted, nonce []byte) ([]byte, error)
	Verify(secret, code string, skew uint) (bool, error)
}

// TOTPEnroller provisions a new authenticator app seed
type TOTPEnroller interface {
	GenerateSecretWithQR(accountName string) (*auth.TOTPEnrollment, error)
}
