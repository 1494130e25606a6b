package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/BradenHooton/mfagate/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenManager handles JWT token generation and validation
type TokenManager struct {
	secret             []byte
	sessionTokenExpiry time.Duration
	resetTokenExpiry   time.Duration
	now                func() time.Time
}

// NewTokenManager creates a new TokenManager
func NewTokenManager(secret string, sessionExpiry, resetExpiry time.Duration) *TokenManager {
	return &TokenManager{
		secret:             []byte(secret),
		sessionTokenExpiry: sessionExpiry,
		resetTokenExpiry:   resetExpiry,
		now:                time.Now,
	}
}

// GenerateSessionToken creates the credential issued after a completed login
func (tm *TokenManager) GenerateSessionToken(userID, username string) (string, error) {
	claims := tm.newClaims(models.TokenTypeSession, userID, tm.sessionTokenExpiry)
	claims.Username = username

	return tm.sign(claims)
}

// GenerateResetToken creates a password-reset token bound to userID and email.
// The returned JTI is recorded on the reset challenge so the token is single use.
func (tm *TokenManager) GenerateResetToken(userID, email string) (token string, jti string, err error) {
	claims := tm.newClaims(models.TokenTypeReset, userID, tm.resetTokenExpiry)
	claims.Email = email
	claims.Purpose = models.PurposePasswordReset

	token, err = tm.sign(claims)
	if err != nil {
		return "", "", err
	}
	return token, claims.ID, nil
}

// ValidateSessionToken verifies a session token
func (tm *TokenManager) ValidateSessionToken(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, models.TokenTypeSession, "")
}

// ValidateResetToken verifies a reset token and its purpose claim
func (tm *TokenManager) ValidateResetToken(tokenString string) (*models.TokenClaims, error) {
	return tm.validate(tokenString, models.TokenTypeReset, models.PurposePasswordReset)
}

func (tm *TokenManager) newClaims(tokenType, userID string, ttl time.Duration) *models.TokenClaims {
	now := tm.now()
	return &models.TokenClaims{
		Type:   tokenType,
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
}

func (tm *TokenManager) sign(claims *models.TokenClaims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", claims.Type, err)
	}
	return tokenString, nil
}

// validate parses the token and checks type and purpose. Every failure is
// reported as models.ErrTokenInvalid with the cause wrapped for logging.
func (tm *TokenManager) validate(tokenString, wantType, wantPurpose string) (*models.TokenClaims, error) {
	claims := &models.TokenClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return tm.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(tm.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrTokenInvalid, err)
	}
	if !token.Valid {
		return nil, models.ErrTokenInvalid
	}

	if claims.Type != wantType {
		return nil, fmt.Errorf("%w: unexpected token type %q", models.ErrTokenInvalid, claims.Type)
	}
	if claims.Purpose != wantPurpose {
		return nil, fmt.Errorf("%w: unexpected token purpose %q", models.ErrTokenInvalid, claims.Purpose)
	}
	if claims.UserID == "" || claims.ID == "" {
		return nil, errors.Join(models.ErrTokenInvalid, errors.New("missing subject or token id"))
	}

	return claims, nil
}
