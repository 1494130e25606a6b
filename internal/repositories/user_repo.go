package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BradenHooton/mfagate/internal/database"
	"github.com/BradenHooton/mfagate/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Unique index names mapped to the identity field they protect
var uniqueFields = map[string]string{
	"users_username_key": "username",
	"users_email_key":    "email",
	"users_phone_key":    "phone",
}

const userColumns = `
	id, username, email, phone, password_hash, password_changed_at,
	mfa_enabled, mfa_methods, totp_secret_encrypted, totp_secret_nonce, selected_method,
	pending_otp, otp_attempts, otp_last_attempt_at, pending_reset, trusted_devices,
	created_at, updated_at`

type UserRepository struct {
	db  *database.DB
	now func() time.Time
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

// rowScanner interface for scanning user rows (supports both single row and multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanUserRow handles nullable and JSON columns and populates a User
func scanUserRow(scanner rowScanner) (*models.User, error) {
	var user models.User
	var email, phone *string
	var methods []string
	var selected string
	var pendingOTP, pendingReset, devices []byte

	err := scanner.Scan(
		&user.ID, &user.Username, &email, &phone, &user.PasswordHash, &user.PasswordChangedAt,
		&user.MFAEnabled, &methods, &user.TOTPSecretEncrypted, &user.TOTPSecretNonce, &selected,
		&pendingOTP, &user.OTPAttempts.Count, &user.OTPAttempts.LastAttemptAt, &pendingReset, &devices,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	if email != nil {
		user.Email = *email
	}
	if phone != nil {
		user.Phone = *phone
	}
	user.SelectedMethod = models.Method(selected)
	for _, m := range methods {
		user.MFAMethods = append(user.MFAMethods, models.Method(m))
	}

	if len(pendingOTP) > 0 {
		if err := json.Unmarshal(pendingOTP, &user.PendingOTP); err != nil {
			return nil, fmt.Errorf("failed to decode pending_otp: %w", err)
		}
	}
	if len(pendingReset) > 0 {
		if err := json.Unmarshal(pendingReset, &user.PendingReset); err != nil {
			return nil, fmt.Errorf("failed to decode pending_reset: %w", err)
		}
	}
	if len(devices) > 0 {
		if err := json.Unmarshal(devices, &user.TrustedDevices); err != nil {
			return nil, fmt.Errorf("failed to decode trusted_devices: %w", err)
		}
	}

	return &user, nil
}

func (r *UserRepository) getBy(ctx context.Context, column, value string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = $1`
	return scanUserRow(r.db.Pool.QueryRow(ctx, query, value))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrNotFound
	}
	return r.getBy(ctx, "id", id)
}

func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.getBy(ctx, "username", username)
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.getBy(ctx, "email", strings.ToLower(strings.TrimSpace(email)))
}

func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*models.User, error) {
	return r.getBy(ctx, "phone", phone)
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	user.ID = uuid.New().String()
	now := r.now()
	user.CreatedAt = now
	user.UpdatedAt = now

	args, err := userArgs(user)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`

	if _, err := r.db.Pool.Exec(ctx, query, args...); err != nil {
		return nil, mapWriteError(err)
	}

	return user, nil
}

// Update persists every mutable column of the aggregate
func (r *UserRepository) Update(ctx context.Context, user *models.User) (*models.User, error) {
	user.UpdatedAt = r.now()

	args, err := userArgs(user)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE users SET
			username = $2, email = $3, phone = $4, password_hash = $5, password_changed_at = $6,
			mfa_enabled = $7, mfa_methods = $8, totp_secret_encrypted = $9, totp_secret_nonce = $10,
			selected_method = $11, pending_otp = $12, otp_attempts = $13, otp_last_attempt_at = $14,
			pending_reset = $15, trusted_devices = $16, updated_at = $18
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, args...)
	if err != nil {
		return nil, mapWriteError(err)
	}
	if tag.RowsAffected() == 0 {
		return nil, models.ErrNotFound
	}

	return user, nil
}

// PurgeStats reports how many rows each cleanup statement touched
type PurgeStats struct {
	OTPChallenges   int64
	ResetChallenges int64
	DeviceSets      int64
}

// PurgeExpired clears challenges and trusted devices that can no longer be
// used. Reset challenges are kept for resetGrace past their code expiry so a
// reset token minted just before expiry can still be redeemed.
func (r *UserRepository) PurgeExpired(ctx context.Context, now time.Time, resetGrace time.Duration) (PurgeStats, error) {
	var stats PurgeStats

	err := r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE users SET pending_otp = NULL
			WHERE pending_otp IS NOT NULL AND (pending_otp->>'expires_at')::timestamptz < $1
		`, now)
		if err != nil {
			return fmt.Errorf("failed to purge otp challenges: %w", err)
		}
		stats.OTPChallenges = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
			UPDATE users SET pending_reset = NULL
			WHERE pending_reset IS NOT NULL AND (pending_reset->>'expires_at')::timestamptz < $1
		`, now.Add(-resetGrace))
		if err != nil {
			return fmt.Errorf("failed to purge reset challenges: %w", err)
		}
		stats.ResetChallenges = tag.RowsAffected()

		tag, err = tx.Exec(ctx, `
			UPDATE users SET trusted_devices = COALESCE((
				SELECT jsonb_agg(d) FROM jsonb_array_elements(trusted_devices) d
				WHERE (d->>'expires_at')::timestamptz > $1
			), '[]'::jsonb)
			WHERE EXISTS (
				SELECT 1 FROM jsonb_array_elements(trusted_devices) d
				WHERE (d->>'expires_at')::timestamptz <= $1
			)
		`, now)
		if err != nil {
			return fmt.Errorf("failed to purge trusted devices: %w", err)
		}
		stats.DeviceSets = tag.RowsAffected()

		return nil
	})

	return stats, err
}

// userArgs encodes the aggregate in userColumns order
func userArgs(user *models.User) ([]any, error) {
	pendingOTP, err := marshalNullable(user.PendingOTP, user.PendingOTP == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending_otp: %w", err)
	}
	pendingReset, err := marshalNullable(user.PendingReset, user.PendingReset == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to encode pending_reset: %w", err)
	}
	devices := user.TrustedDevices
	if devices == nil {
		devices = []models.TrustedDevice{}
	}
	devicesJSON, err := json.Marshal(devices)
	if err != nil {
		return nil, fmt.Errorf("failed to encode trusted_devices: %w", err)
	}

	methods := make([]string, 0, len(user.MFAMethods))
	for _, m := range user.MFAMethods {
		methods = append(methods, string(m))
	}

	return []any{
		user.ID, user.Username, nullableString(user.Email), nullableString(user.Phone),
		user.PasswordHash, user.PasswordChangedAt,
		user.MFAEnabled, methods, user.TOTPSecretEncrypted, user.TOTPSecretNonce, string(user.SelectedMethod),
		pendingOTP, user.OTPAttempts.Count, user.OTPAttempts.LastAttemptAt, pendingReset, devicesJSON,
		user.CreatedAt, user.UpdatedAt,
	}, nil
}

func marshalNullable(v any, isNil bool) ([]byte, error) {
	if isNil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// mapWriteError turns unique violations into DuplicateFieldError
func mapWriteError(err error) error {
	mapped := database.MapPostgresError(err)
	if errors.Is(mapped, models.ErrConflict) {
		if field, ok := uniqueFields[database.ConstraintName(err)]; ok {
			return &models.DuplicateFieldError{Field: field}
		}
	}
	return mapped
}
