package main

import (
	"crypto/tls"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const defaultMaxBodySize = 1024 * 1024 // 1MB

// loadTLSConfig returns the server TLS settings, or nil when TLS is off
func loadTLSConfig(enabled bool, certFile, keyFile, minVersion string) (*tls.Config, string, string, error) {
	if !enabled {
		return nil, "", "", nil
	}

	minV, err := parseTLSMinVersion(minVersion)
	if err != nil {
		return nil, "", "", err
	}

	return &tls.Config{MinVersion: minV}, certFile, keyFile, nil
}

// parseTLSMinVersion accepts "1.2", "1.3" or "" (1.2)
func parseTLSMinVersion(s string) (uint16, error) {
	switch s {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("invalid TLS min version %q (must be 1.2 or 1.3)", s)
	}
}

// parseMaxBodySize parses plain bytes or a KB/MB/GB suffix.
// Empty or invalid input yields the 1MB default.
func parseMaxBodySize(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return defaultMaxBodySize
	}

	multiplier := int64(1)
	for _, unit := range []struct {
		suffix string
		mult   int64
	}{
		{"GB", 1024 * 1024 * 1024},
		{"MB", 1024 * 1024},
		{"KB", 1024},
	} {
		if strings.HasSuffix(s, unit.suffix) {
			multiplier = unit.mult
			s = strings.TrimSuffix(s, unit.suffix)
			break
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 || n > math.MaxInt64/multiplier {
		return defaultMaxBodySize
	}
	return n * multiplier
}

// parseCORSOrigins splits a comma separated origin list
func parseCORSOrigins(s string) []string {
	var origins []string
	for _, o := range strings.Split(s, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
