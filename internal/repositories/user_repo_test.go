package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/BradenHooton/mfagate/internal/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapWriteError_DuplicateFields(t *testing.T) {
	for constraint, field := range uniqueFields {
		t.Run(constraint, func(t *testing.T) {
			err := mapWriteError(fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: constraint}))

			var dup *models.DuplicateFieldError
			require.True(t, errors.As(err, &dup))
			assert.Equal(t, field, dup.Field)
			assert.ErrorIs(t, err, models.ErrDuplicateField)
		})
	}
}

func TestMapWriteError_UnknownConstraint(t *testing.T) {
	err := mapWriteError(&pgconn.PgError{Code: "23505", ConstraintName: "users_pkey"})
	assert.ErrorIs(t, err, models.ErrConflict)
	assert.NotErrorIs(t, err, models.ErrDuplicateField)
}

// fakeRow replays the encoded column values through the scanner
type fakeRow struct {
	values []any
}

func (f fakeRow) Scan(dest ...interface{}) error {
	if len(dest) != len(f.values) {
		return fmt.Errorf("scan: got %d destinations for %d values", len(dest), len(f.values))
	}
	for i, d := range dest {
		switch p := d.(type) {
		case *string:
			*p = f.values[i].(string)
		case **string:
			*p = f.values[i].(*string)
		case *bool:
			*p = f.values[i].(bool)
		case *int:
			*p = f.values[i].(int)
		case *[]string:
			*p = f.values[i].([]string)
		case *[]byte:
			*p = f.values[i].([]byte)
		case **time.Time:
			*p = f.values[i].(*time.Time)
		case *time.Time:
			*p = f.values[i].(time.Time)
		default:
			return fmt.Errorf("scan: unsupported destination %T", d)
		}
	}
	return nil
}

func TestUserArgs_ScanRoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
	user := &models.User{
		ID:             "2a0c8c84-9c1d-4c57-8f0e-2f0f4a4d8f10",
		Username:       "alice",
		Email:          "alice@example.com",
		PasswordHash:   "$2a$12$hash",
		MFAEnabled:     true,
		MFAMethods:     []models.Method{models.MethodEmail, models.MethodApp},
		SelectedMethod: models.MethodEmail,
		PendingOTP: &models.OTPChallenge{
			CodeHash: "abc", Method: models.MethodEmail, IssuedAt: now, ExpiresAt: now.Add(10 * time.Minute),
		},
		OTPAttempts: models.AttemptCounter{Count: 2, LastAttemptAt: &now},
		TrustedDevices: []models.TrustedDevice{
			{TokenHash: "h1", Prefix: "p1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	args, err := userArgs(user)
	require.NoError(t, err)

	assert.Nil(t, args[3], "empty phone is stored as NULL")
	assert.Nil(t, args[14], "absent reset challenge is stored as NULL")

	got, err := scanUserRow(fakeRow{values: args})
	require.NoError(t, err)

	assert.Equal(t, user.Username, got.Username)
	assert.Equal(t, user.Email, got.Email)
	assert.Empty(t, got.Phone)
	assert.Equal(t, user.MFAMethods, got.MFAMethods)
	assert.Equal(t, user.SelectedMethod, got.SelectedMethod)
	require.NotNil(t, got.PendingOTP)
	assert.Equal(t, "abc", got.PendingOTP.CodeHash)
	assert.True(t, got.PendingOTP.ExpiresAt.Equal(user.PendingOTP.ExpiresAt))
	assert.Nil(t, got.PendingReset)
	assert.Equal(t, 2, got.OTPAttempts.Count)
	require.Len(t, got.TrustedDevices, 1)
	assert.Equal(t, "h1", got.TrustedDevices[0].TokenHash)
}

func TestUserArgs_EmptyDevicesEncodeAsArray(t *testing.T) {
	args, err := userArgs(&models.User{ID: "x", Username: "bob"})
	require.NoError(t, err)

	var devices []models.TrustedDevice
	require.NoError(t, json.Unmarshal(args[15].([]byte), &devices))
	assert.NotNil(t, devices)
	assert.Empty(t, devices)
}
