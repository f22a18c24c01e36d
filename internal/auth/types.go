package auth

import (
	"time"
)

// Role is the authorization level assigned to a user at signup
type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// User represents a storefront account
type User struct {
	ID           string
	Name         string
	Email        string
	Phone        string
	PasswordHash string
	Role         Role

	EmailVerified              bool
	EmailVerificationTokenHash string
	EmailVerificationExpiry    *time.Time

	PasswordResetTokenHash string
	PasswordResetExpiry    *time.Time

	LastLogin *time.Time
	CreatedAt time.Time
}

// PublicUser is the subset of User that may be returned to clients
type PublicUser struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Email         string `json:"email"`
	Role          Role   `json:"role"`
	Phone         string `json:"phone"`
	EmailVerified bool   `json:"emailVerified"`
}

// Public returns the client-safe view of the user
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:            u.ID,
		Name:          u.Name,
		Email:         u.Email,
		Role:          u.Role,
		Phone:         u.Phone,
		EmailVerified: u.EmailVerified,
	}
}

// Claims represents the identity carried by an access token
type Claims struct {
	UserID string
	Email  string
	Role   Role
}

// RefreshToken represents a stored refresh token record.
// Only the hash of the bearer value is persisted.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the record is dead at the given instant
func (rt *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(rt.ExpiresAt)
}

// RateLimitResult is the outcome of a single rate limit check
type RateLimitResult struct {
	Allowed   bool
	Remaining int
	// RetryAfter is the number of whole seconds until the window resets.
	// Zero when the request was allowed.
	RetryAfter int
}
