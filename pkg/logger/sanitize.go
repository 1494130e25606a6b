package logger

import (
	"strings"
)

// Mask is the fixed suffix used in place of redacted characters
const Mask = "***"

// MaskPrefix keeps the first visible runes of value and replaces the rest with
// a fixed "***". A value no longer than visible is fully masked, and an empty
// value stays empty. The suffix length never reveals the original length.
func MaskPrefix(value string, visible int) string {
	if value == "" {
		return ""
	}
	runes := []rune(value)
	if visible <= 0 || len(runes) <= visible {
		return Mask
	}
	return string(runes[:visible]) + Mask
}

// MaskEmail keeps the first three runes of the local part and the full domain
// (e.g. "ali***@example.com"). Input without a single "@" is masked as a whole.
func MaskEmail(email string) string {
	if email == "" {
		return ""
	}
	local, domain, ok := strings.Cut(email, "@")
	if !ok || local == "" || domain == "" || strings.Contains(domain, "@") {
		return MaskPrefix(email, 3)
	}
	return MaskPrefix(local, 3) + "@" + domain
}

// MaskPhone keeps the first four runes of a phone number (country code and prefix)
func MaskPhone(phone string) string {
	return MaskPrefix(phone, 4)
}

// SanitizedEmail masks an email address for logging (e.g., "u***@e***.com")
func SanitizedEmail(email string) string {
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return "[invalid-email]"
	}

	username := parts[0]
	domain := parts[1]

	if len(username) > 1 {
		username = string(username[0]) + strings.Repeat("*", len(username)-1)
	}

	// Mask all but the TLD
	domainParts := strings.Split(domain, ".")
	if len(domainParts) > 1 {
		for i := 0; i < len(domainParts)-1; i++ {
			domainParts[i] = strings.Repeat("*", len(domainParts[i]))
		}
		domain = strings.Join(domainParts, ".")
	}

	return username + "@" + domain
}

var sensitiveParams = []string{
	"password",
	"token",
	"secret",
	"code",
	"email",
	"phone",
	"device",
	"auth",
}

// SanitizeQueryString reports whether a query string carries sensitive
// parameters and should be redacted as a whole
func SanitizeQueryString(rawQuery string) bool {
	query := strings.ToLower(rawQuery)
	for _, param := range sensitiveParams {
		if strings.Contains(query, param) {
			return true
		}
	}
	return false
}
