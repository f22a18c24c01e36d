package auth

import (
	"context"
	"time"
)

// CredentialStore persists user records. Lookups return ErrNotFound when
// no live record matches.
type CredentialStore interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// FindByVerificationTokenHash only matches while the verification expiry is after now.
	FindByVerificationTokenHash(ctx context.Context, hash string, now time.Time) (*User, error)
	// FindByResetTokenHash only matches while the reset expiry is after now.
	FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*User, error)
	// Create inserts a new user and returns ErrConflict if the email is taken.
	Create(ctx context.Context, user *User) error
	// RecordLogin stamps the last login time while the stored password hash
	// still equals passwordHash. It reports false when the password changed
	// after it was checked.
	RecordLogin(ctx context.Context, id, passwordHash string, at time.Time) (bool, error)
	// SetResetToken stores a reset token hash and expiry. ErrNotFound if the user is gone.
	SetResetToken(ctx context.Context, id, hash string, expiry time.Time) error
	// ConsumeResetToken sets passwordHash and clears the reset token of the
	// user holding a live hash, in one step. A token is consumed at most once;
	// later calls get ErrNotFound.
	ConsumeResetToken(ctx context.Context, hash string, now time.Time, passwordHash string) (*User, error)
	// ConsumeVerificationToken marks the holder of a live verification hash as
	// verified and clears the token. ErrNotFound when nothing matches.
	ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (*User, error)
}

// SessionStore persists refresh token records
type SessionStore interface {
	Create(ctx context.Context, token *RefreshToken) error
	// FindValid returns the record for hash owned by userID that has not expired at now.
	FindValid(ctx context.Context, tokenHash, userID string, now time.Time) (*RefreshToken, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
	DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error)
	DeleteAllForUser(ctx context.Context, userID string) (int64, error)
	// Rotate removes oldID and stores next in one step. It reports false,
	// without storing next, when oldID no longer exists.
	Rotate(ctx context.Context, oldID string, next *RefreshToken) (bool, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}
