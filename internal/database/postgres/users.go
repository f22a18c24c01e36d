package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

const userColumns = `id, name, email, phone, password_hash, role, email_verified,
	email_verification_token_hash, email_verification_expiry,
	password_reset_token_hash, password_reset_expiry, last_login, created_at`

// UserStore implements auth.CredentialStore
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store on db
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.findOne(ctx, "find by id", `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, "find by email", `SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`, email)
}

func (s *UserStore) FindByVerificationTokenHash(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	return s.findOne(ctx, "find by verification token",
		`SELECT `+userColumns+` FROM users
		 WHERE email_verification_token_hash = $1 AND email_verification_expiry > $2`,
		hash, now)
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	return s.findOne(ctx, "find by reset token",
		`SELECT `+userColumns+` FROM users
		 WHERE password_reset_token_hash = $1 AND password_reset_expiry > $2`,
		hash, now)
}

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		userArgs(u)...)
	if err != nil {
		if isUniqueViolation(err) {
			return auth.ErrConflict
		}
		return oops.Code("DB_ERROR").With("operation", "create user").Wrap(err)
	}
	return nil
}

func (s *UserStore) RecordLogin(ctx context.Context, id, passwordHash string, at time.Time) (bool, error) {
	n, err := s.exec(ctx, "record login",
		`UPDATE users SET last_login = $3 WHERE id = $1 AND password_hash = $2`,
		id, passwordHash, at)
	return n == 1, err
}

func (s *UserStore) SetResetToken(ctx context.Context, id, hash string, expiry time.Time) error {
	n, err := s.exec(ctx, "set reset token",
		`UPDATE users SET password_reset_token_hash = $2, password_reset_expiry = $3 WHERE id = $1`,
		id, hash, expiry)
	if err != nil {
		return err
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *UserStore) ConsumeResetToken(ctx context.Context, hash string, now time.Time, passwordHash string) (*auth.User, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	return s.findOne(ctx, "consume reset token",
		`UPDATE users
		 SET password_hash = $3, password_reset_token_hash = '', password_reset_expiry = NULL
		 WHERE password_reset_token_hash = $1 AND password_reset_expiry > $2
		 RETURNING `+userColumns,
		hash, now, passwordHash)
}

func (s *UserStore) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	return s.findOne(ctx, "consume verification token",
		`UPDATE users
		 SET email_verified = TRUE, email_verification_token_hash = '', email_verification_expiry = NULL
		 WHERE email_verification_token_hash = $1 AND email_verification_expiry > $2
		 RETURNING `+userColumns,
		hash, now)
}

func (s *UserStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, oops.Code("DB_ERROR").With("operation", op).Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, oops.Code("DB_ERROR").With("operation", op).Wrap(err)
	}
	return n, nil
}

func (s *UserStore) findOne(ctx context.Context, op, query string, args ...any) (*auth.User, error) {
	u, err := scanUser(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.Code("DB_ERROR").With("operation", op).Wrap(err)
	}
	return u, nil
}

func userArgs(u *auth.User) []any {
	return []any{
		u.ID, u.Name, u.Email, u.Phone, u.PasswordHash, string(u.Role), u.EmailVerified,
		u.EmailVerificationTokenHash, nullTime(u.EmailVerificationExpiry),
		u.PasswordResetTokenHash, nullTime(u.PasswordResetExpiry),
		nullTime(u.LastLogin), u.CreatedAt,
	}
}

func scanUser(row rowScanner) (*auth.User, error) {
	var (
		u                          auth.User
		role                       string
		verifyExp, resetExp, login sql.NullTime
	)
	err := row.Scan(
		&u.ID, &u.Name, &u.Email, &u.Phone, &u.PasswordHash, &role, &u.EmailVerified,
		&u.EmailVerificationTokenHash, &verifyExp,
		&u.PasswordResetTokenHash, &resetExp,
		&login, &u.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	u.Role = auth.Role(role)
	u.EmailVerificationExpiry = timePtr(verifyExp)
	u.PasswordResetExpiry = timePtr(resetExp)
	u.LastLogin = timePtr(login)
	return &u, nil
}
