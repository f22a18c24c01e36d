// Package database selects and opens the credential and session stores.
package database

import (
	"fmt"
	"net/url"
	"strings"
)

// Supported store drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongodb"
)

// allowed postgres sslmodes in production
var postgresSSLModes = map[string]bool{
	"require":     true, // Require SSL but don't verify server certificate
	"verify-ca":   true, // Require SSL and verify that server certificate is signed by a trusted CA
	"verify-full": true, // Require SSL, verify CA, and verify server hostname matches certificate
}

// ValidateDatabaseURL checks that the connection URL for driver uses
// appropriate TLS settings for the environment. Development accepts any
// well-formed URL.
func ValidateDatabaseURL(driver, dbURL string, isDev bool) error {
	if driver == DriverMemory {
		if !isDev {
			return fmt.Errorf("the %s driver is not allowed in production", DriverMemory)
		}
		return nil
	}

	if dbURL == "" {
		return fmt.Errorf("database URL is required for driver %q", driver)
	}

	parsed, err := url.Parse(dbURL)
	if err != nil {
		return fmt.Errorf("invalid database URL format: %w", err)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid database URL format: missing host")
	}

	switch driver {
	case DriverPostgres:
		if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
			return fmt.Errorf("postgres URL must use the postgres:// scheme (got %q)", parsed.Scheme)
		}
		if isDev {
			return nil
		}
		sslMode := parsed.Query().Get("sslmode")
		if !postgresSSLModes[sslMode] {
			return fmt.Errorf("database SSL required in production (sslmode=%q not allowed, must be one of: require, verify-ca, verify-full)", sslMode)
		}
	case DriverMongo:
		if parsed.Scheme != "mongodb" && parsed.Scheme != "mongodb+srv" {
			return fmt.Errorf("mongodb URL must use the mongodb:// or mongodb+srv:// scheme (got %q)", parsed.Scheme)
		}
		if isDev {
			return nil
		}
		if !mongoTLSEnabled(parsed) {
			return fmt.Errorf("database TLS required in production (set tls=true or use mongodb+srv://)")
		}
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}

	return nil
}

// mongoTLSEnabled follows the driver defaults: SRV URLs imply TLS unless
// it is switched off explicitly.
func mongoTLSEnabled(u *url.URL) bool {
	q := u.Query()
	for _, key := range []string{"tls", "ssl"} {
		if v := q.Get(key); v != "" {
			return strings.EqualFold(v, "true")
		}
	}
	return u.Scheme == "mongodb+srv"
}
