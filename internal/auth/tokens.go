package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 7 * 24 * time.Hour

	// DefaultBcryptCost is the fixed work factor for password hashes
	DefaultBcryptCost = 12

	opaqueTokenBytes = 32

	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var (
	ErrInvalidTokenClaims = errors.New("token claims are invalid")
	ErrWrongTokenType     = errors.New("token has the wrong type")
)

type accessClaims struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
	Type  string `json:"typ"`
	jwt.RegisteredClaims
}

type refreshClaims struct {
	Type string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenConfig configures a TokenIssuer
type TokenConfig struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// TokenIssuer signs and validates HS256 access and refresh tokens
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

// NewTokenIssuer creates a new TokenIssuer
func NewTokenIssuer(cfg TokenConfig) *TokenIssuer {
	ti := &TokenIssuer{
		accessSecret:  cfg.AccessSecret,
		refreshSecret: cfg.RefreshSecret,
		accessTTL:     cfg.AccessTTL,
		refreshTTL:    cfg.RefreshTTL,
		now:           cfg.Now,
	}
	if ti.accessTTL <= 0 {
		ti.accessTTL = DefaultAccessTokenTTL
	}
	if ti.refreshTTL <= 0 {
		ti.refreshTTL = DefaultRefreshTokenTTL
	}
	if ti.now == nil {
		ti.now = time.Now
	}
	return ti
}

// AccessTTL returns the lifetime of issued access tokens
func (ti *TokenIssuer) AccessTTL() time.Duration { return ti.accessTTL }

// RefreshTTL returns the lifetime of issued refresh tokens
func (ti *TokenIssuer) RefreshTTL() time.Duration { return ti.refreshTTL }

// GenerateAccessToken generates a JWT access token for a user
func (ti *TokenIssuer) GenerateAccessToken(user *User) (string, error) {
	now := ti.now()
	claims := accessClaims{
		Email: user.Email,
		Role:  user.Role,
		Type:  tokenTypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(ti.accessSecret)
}

// ParseAccessToken validates a JWT access token and returns the claims
func (ti *TokenIssuer) ParseAccessToken(tokenString string) (*Claims, error) {
	claims := &accessClaims{}
	if _, err := ti.parse(tokenString, claims, ti.accessSecret); err != nil {
		return nil, err
	}

	if claims.Type != tokenTypeAccess {
		return nil, ErrWrongTokenType
	}
	if claims.Subject == "" || claims.Email == "" || claims.Role == "" {
		return nil, ErrInvalidTokenClaims
	}

	return &Claims{
		UserID: claims.Subject,
		Email:  claims.Email,
		Role:   claims.Role,
	}, nil
}

// GenerateRefreshToken generates a signed refresh token that embeds only the user id.
// Each token carries a random jti so two tokens issued in the same second differ.
func (ti *TokenIssuer) GenerateRefreshToken(userID string) (string, time.Time, error) {
	now := ti.now()
	expiresAt := now.Add(ti.refreshTTL)
	claims := refreshClaims{
		Type: tokenTypeRefresh,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(ti.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ParseRefreshToken verifies signature and expiry and returns the owning user id
func (ti *TokenIssuer) ParseRefreshToken(tokenString string) (string, error) {
	claims := &refreshClaims{}
	if _, err := ti.parse(tokenString, claims, ti.refreshSecret); err != nil {
		return "", err
	}

	if claims.Type != tokenTypeRefresh {
		return "", ErrWrongTokenType
	}
	if claims.Subject == "" {
		return "", ErrInvalidTokenClaims
	}
	return claims.Subject, nil
}

func (ti *TokenIssuer) parse(tokenString string, claims jwt.Claims, secret []byte) (*jwt.Token, error) {
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return token, nil
}

// PasswordHasher hashes and verifies passwords
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Compare returns nil when password matches hash.
	Compare(hash, password string) error
}

// BcryptHasher implements PasswordHasher with a fixed bcrypt cost
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher creates a hasher; a non-positive cost selects DefaultBcryptCost
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost <= 0 {
		cost = DefaultBcryptCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash hashes a password using bcrypt
func (h *BcryptHasher) Hash(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// Compare checks if a password matches the hash
func (h *BcryptHasher) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// GenerateOpaqueToken returns 32 cryptographically random bytes, hex encoded.
// Used as the raw value for email verification and password reset links.
func GenerateOpaqueToken() (string, error) {
	bytes := make([]byte, opaqueTokenBytes)
	if _, err := rand.Read(bytes); err != nil {
		return "", err
	}
	return hex.EncodeToString(bytes), nil
}

// HashToken hashes a token using SHA256.
// The hash is unsalted so stores can look records up by exact match.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
