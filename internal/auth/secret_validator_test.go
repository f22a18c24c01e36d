package auth

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

func TestValidateSecret_EmptySecret(t *testing.T) {
	log, _ := test.NewNullLogger()
	err := ValidateSecret("access token secret", "", false, log)
	if err == nil {
		t.Fatal("ValidateSecret() error = nil, want error for empty secret")
	}

	if !strings.Contains(err.Error(), "required") {
		t.Errorf("ValidateSecret() error = %v, want error mentioning 'required'", err)
	}
}

func TestValidateSecret_TooShort(t *testing.T) {
	log, _ := test.NewNullLogger()
	tests := []struct {
		name   string
		secret string
	}{
		{"1 char", "a"},
		{"10 chars", "1234567890"},
		{"31 chars", "1234567890123456789012345678901"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSecret("access token secret", tt.secret, false, log)
			if err == nil {
				t.Fatalf("ValidateSecret(%q) error = nil, want error for short secret", tt.secret)
			}

			if !strings.Contains(err.Error(), "32 characters") {
				t.Errorf("ValidateSecret() error = %v, want error mentioning minimum length", err)
			}
		})
	}
}

func TestValidateSecret_MinimumLength(t *testing.T) {
	log, _ := test.NewNullLogger()
	secret := "12345678901234567890123456789012"
	if err := ValidateSecret("access token secret", secret, false, log); err != nil {
		t.Errorf("ValidateSecret() error = %v, want nil for 32-char secret", err)
	}
}

func TestValidateSecret_WeakSecrets_Production(t *testing.T) {
	log, _ := test.NewNullLogger()
	for _, secret := range knownWeakSecrets {
		t.Run(secret, func(t *testing.T) {
			err := ValidateSecret("refresh token secret", secret, false, log)
			if err == nil {
				t.Fatalf("ValidateSecret(%q, false) error = nil, want error in production", secret)
			}

			if !strings.Contains(err.Error(), "production") {
				t.Errorf("ValidateSecret() error = %v, want error mentioning 'production'", err)
			}
		})
	}
}

func TestValidateSecret_WeakSecrets_DevelopmentWarns(t *testing.T) {
	log, hook := test.NewNullLogger()

	if err := ValidateSecret("access token secret", "your-secret-key", true, log); err != nil {
		t.Fatalf("ValidateSecret() error = %v, want nil in development", err)
	}

	entry := hook.LastEntry()
	if entry == nil {
		t.Fatal("expected a warning to be logged")
	}
	if entry.Level != logrus.WarnLevel {
		t.Errorf("log level = %v, want warn", entry.Level)
	}
	if entry.Data["secret"] != "access token secret" {
		t.Errorf("secret field = %v, want access token secret", entry.Data["secret"])
	}
}

func TestValidateSecret_StrongSecret(t *testing.T) {
	log, _ := test.NewNullLogger()
	strongSecrets := []string{
		"a-very-strong-secret-key-with-sufficient-entropy",
		"12345678901234567890123456789012345678901234567890",
		"my-super-secure-production-jwt-secret-2024",
	}

	for _, secret := range strongSecrets {
		t.Run(secret, func(t *testing.T) {
			if err := ValidateSecret("access token secret", secret, false, log); err != nil {
				t.Errorf("ValidateSecret(%q, false) error = %v, want nil", secret, err)
			}

			if err := ValidateSecret("access token secret", secret, true, log); err != nil {
				t.Errorf("ValidateSecret(%q, true) error = %v, want nil", secret, err)
			}
		})
	}
}

func TestValidateSecretPair(t *testing.T) {
	log, _ := test.NewNullLogger()
	strong := "a-very-strong-secret-key-with-sufficient-entropy"
	other := "another-strong-secret-key-for-refresh-tokens-0001"

	if err := ValidateSecretPair(strong, other, false, log); err != nil {
		t.Errorf("ValidateSecretPair() error = %v, want nil", err)
	}

	err := ValidateSecretPair(strong, strong, false, log)
	if err == nil || !strings.Contains(err.Error(), "must differ") {
		t.Errorf("ValidateSecretPair(same) error = %v, want 'must differ'", err)
	}

	if err := ValidateSecretPair(strong, strong, true, log); err != nil {
		t.Errorf("ValidateSecretPair(same, dev) error = %v, want nil", err)
	}

	err = ValidateSecretPair("", "", false, log)
	if err == nil {
		t.Fatal("ValidateSecretPair(empty) error = nil, want error")
	}
	if !strings.Contains(err.Error(), "access token secret") || !strings.Contains(err.Error(), "refresh token secret") {
		t.Errorf("ValidateSecretPair(empty) error = %v, want both secrets named", err)
	}
}

func TestIsDevelopmentMode(t *testing.T) {
	tests := []struct {
		env  string
		want bool
	}{
		{"development", true},
		{"dev", true},
		{"Development", true},
		{" local ", true},
		{"test", true},
		{"", false},
		{"production", false},
		{"prod", false},
		{"staging", false},
	}

	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			if got := IsDevelopmentMode(tt.env); got != tt.want {
				t.Errorf("IsDevelopmentMode(%q) = %v, want %v", tt.env, got, tt.want)
			}
		})
	}
}
