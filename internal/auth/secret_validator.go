package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

const minSecretLength = 32

// Known weak/default secrets that should never be used in production
var knownWeakSecrets = []string{
	"local-dev-jwt-secret-not-for-production",
	"your-secret-key",
	"your-refresh-secret-key",
	"changeme",
	"secret",
	"password",
	"test",
	"dev",
	"development",
}

// ValidateSecret checks that a token signing secret meets security requirements.
// name identifies the secret in messages. Weak secrets are accepted with a
// warning when isDev is set.
func ValidateSecret(name, secret string, isDev bool, log logrus.FieldLogger) error {
	if secret == "" {
		return fmt.Errorf("%s is required", name)
	}

	// Weak secrets are checked before length so dev mode can accept them
	for _, weak := range knownWeakSecrets {
		if strings.EqualFold(secret, weak) {
			if isDev {
				log.WithField("secret", name).Warn("using a default signing secret, NOT FOR PRODUCTION USE")
				return nil
			}
			return fmt.Errorf("default/weak %s not allowed in production environment", name)
		}
	}

	if len(secret) < minSecretLength {
		return fmt.Errorf("%s must be at least %d characters (got %d)", name, minSecretLength, len(secret))
	}

	return nil
}

// ValidateSecretPair validates both signing secrets. Outside development the
// two must differ so a refresh token can never verify as an access token.
func ValidateSecretPair(accessSecret, refreshSecret string, isDev bool, log logrus.FieldLogger) error {
	var errs []error
	if err := ValidateSecret("access token secret", accessSecret, isDev, log); err != nil {
		errs = append(errs, err)
	}
	if err := ValidateSecret("refresh token secret", refreshSecret, isDev, log); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if !isDev && accessSecret == refreshSecret {
		return errors.New("access and refresh token secrets must differ in production")
	}
	return nil
}

// IsDevelopmentMode reports whether env names a development environment.
// Anything unrecognised is treated as production.
func IsDevelopmentMode(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}
