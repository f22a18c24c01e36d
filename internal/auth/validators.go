package auth

import (
	"errors"
	"regexp"
	"strings"
	"unicode"
)

const minPasswordLength = 8

var (
	emailRegex = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

	htmlReplacer = strings.NewReplacer(
		"<", "&lt;",
		">", "&gt;",
		`"`, "&quot;",
		"'", "&#x27;",
		"/", "&#x2F;",
	)
)

// ValidateEmailFormat is a permissive syntactic check: a single @, non-empty
// local and domain parts and a dot in the domain. It says nothing about deliverability.
func ValidateEmailFormat(email string) bool {
	return emailRegex.MatchString(email)
}

// CheckPasswordStrength enforces password complexity requirements.
// The returned error message is meant for the client.
func CheckPasswordStrength(password string) error {
	if len(password) < minPasswordLength {
		return errors.New("Password must be at least 8 characters")
	}

	var hasLetter, hasNumber bool
	for _, char := range password {
		switch {
		case char <= unicode.MaxASCII && unicode.IsLetter(char):
			hasLetter = true
		case char >= '0' && char <= '9':
			hasNumber = true
		}
	}

	if !hasLetter || !hasNumber {
		return errors.New("Password must contain both letters and numbers")
	}

	return nil
}

// Sanitize escapes characters that are significant in HTML
func Sanitize(input string) string {
	return htmlReplacer.Replace(input)
}

// NormalizeEmail sanitizes, trims and lower-cases an email address
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(Sanitize(email)))
}
