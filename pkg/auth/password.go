package auth

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"
)

const (
	BcryptCost     = 12
	MinPasswordLen = 8
	MaxPasswordLen = 128
)

// PasswordValidationError holds the failed policy rules (internal use only)
type PasswordValidationError struct {
	Errors []string
}

func (e *PasswordValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "password validation failed"
	}
	return "password does not meet requirements: " + strings.Join(e.Errors, "; ")
}

// Common weak passwords to reject
var commonPasswords = map[string]bool{
	"password":     true,
	"password1":    true,
	"password123":  true,
	"12345678":     true,
	"123456789":    true,
	"qwerty123":    true,
	"qwertyuiop":   true,
	"abc12345":     true,
	"iloveyou1":    true,
	"letmein1":     true,
	"welcome1":     true,
	"welcome123":   true,
	"admin123":     true,
	"passw0rd":     true,
	"sunshine1":    true,
	"princess1":    true,
	"football1":    true,
	"baseball1":    true,
	"trustno1":     true,
	"changeme1":    true,
	"monkey123":    true,
	"dragon123":    true,
	"starwars1":    true,
	"superman1":    true,
	"p@ssw0rd":     true,
	"password1234": true,
}

var errEmptyPassword = errors.New("password cannot be empty")

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errEmptyPassword
	}
	hashedBytes, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hashedBytes), nil
}

func ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// ValidatePassword enforces the password policy: 8 to 128 characters with at
// least one lowercase letter, one uppercase letter and one digit, and not a
// well-known password.
func ValidatePassword(password string) error {
	var failures []string

	length := utf8.RuneCountInString(password)
	if length < MinPasswordLen {
		failures = append(failures, fmt.Sprintf("must be at least %d characters", MinPasswordLen))
	}
	if length > MaxPasswordLen {
		failures = append(failures, fmt.Sprintf("must be at most %d characters", MaxPasswordLen))
	}

	var hasUpper, hasLower, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}

	if !hasUpper {
		failures = append(failures, "must contain at least one uppercase letter")
	}
	if !hasLower {
		failures = append(failures, "must contain at least one lowercase letter")
	}
	if !hasDigit {
		failures = append(failures, "must contain at least one digit")
	}

	if commonPasswords[strings.ToLower(password)] {
		failures = append(failures, "is too common")
	}

	if len(failures) > 0 {
		return &PasswordValidationError{Errors: failures}
	}
	return nil
}
