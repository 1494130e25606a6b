package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name       string
		password   string
		shouldFail bool
	}{
		{name: "minimal valid password", password: "GoodPass1"},
		{name: "valid with symbols", password: "MyP@ssw0rd!"},
		{name: "exactly eight characters", password: "Abcdefg1"},
		{name: "seven characters", password: "short1A", shouldFail: true},
		{name: "missing uppercase", password: "alllowercase1", shouldFail: true},
		{name: "missing lowercase", password: "ALLUPPERCASE1", shouldFail: true},
		{name: "missing digit", password: "NoDigitsHere", shouldFail: true},
		{name: "common password rejected", password: "Password123", shouldFail: true},
		{name: "too long", password: "Aa1" + strings.Repeat("x", 126), shouldFail: true},
		{name: "maximum length accepted", password: "Aa1" + strings.Repeat("x", 125)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if !tt.shouldFail {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var pve *PasswordValidationError
			assert.True(t, errors.As(err, &pve))
			assert.NotEmpty(t, pve.Errors)
		})
	}
}

func TestValidatePassword_CountsCharactersNotBytes(t *testing.T) {
	// 7 runes, 9 bytes
	assert.Error(t, ValidatePassword("Ééabc1D"))
}

func TestHashAndComparePassword(t *testing.T) {
	password := "SecureP@ss123"

	hash, err := HashPassword(password)
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
	assert.NotEqual(t, password, hash)

	assert.NoError(t, ComparePassword(hash, password))
	assert.Error(t, ComparePassword(hash, "WrongPassword123!"))
}

func TestHashPassword_Empty(t *testing.T) {
	_, err := HashPassword("")
	assert.Error(t, err)
}
