package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/samber/oops"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

// SessionStore implements auth.SessionStore
type SessionStore struct {
	db *sql.DB
}

// NewSessionStore creates a session store on db
func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, t *auth.RefreshToken) error {
	if err := insertSession(ctx, s.db, t); err != nil {
		return oops.Code("DB_ERROR").With("operation", "create session").With("user_id", t.UserID).Wrap(err)
	}
	return nil
}

func (s *SessionStore) FindValid(ctx context.Context, tokenHash, userID string, now time.Time) (*auth.RefreshToken, error) {
	var t auth.RefreshToken
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at FROM refresh_tokens
		 WHERE token_hash = $1 AND user_id = $2 AND expires_at > $3`,
		tokenHash, userID, now,
	).Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.Code("DB_ERROR").With("operation", "find session").With("user_id", userID).Wrap(err)
	}
	return &t, nil
}

func (s *SessionStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	n, err := s.exec(ctx, "delete session", `DELETE FROM refresh_tokens WHERE id = $1`, id)
	return n > 0, err
}

func (s *SessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	return s.exec(ctx, "delete session by hash", `DELETE FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
}

func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.exec(ctx, "delete user sessions", `DELETE FROM refresh_tokens WHERE user_id = $1`, userID)
}

func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.exec(ctx, "delete expired sessions", `DELETE FROM refresh_tokens WHERE expires_at <= $1`, now)
}

// Rotate deletes oldID and inserts next in one transaction. The row count of
// the delete decides the winner when two requests rotate the same token.
func (s *SessionStore) Rotate(ctx context.Context, oldID string, next *auth.RefreshToken) (rotated bool, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, oops.Code("DB_ERROR").With("operation", "begin rotate").Wrap(err)
	}
	defer func() {
		if !rotated {
			_ = tx.Rollback()
		}
	}()

	res, err := tx.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, oldID)
	if err != nil {
		return false, oops.Code("DB_ERROR").With("operation", "rotate delete").Wrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, oops.Code("DB_ERROR").With("operation", "rotate delete").Wrap(err)
	}
	if n == 0 {
		return false, nil
	}

	if err := insertSession(ctx, tx, next); err != nil {
		return false, oops.Code("DB_ERROR").With("operation", "rotate insert").Wrap(err)
	}
	if err := tx.Commit(); err != nil {
		return false, oops.Code("DB_ERROR").With("operation", "rotate commit").Wrap(err)
	}
	return true, nil
}

func (s *SessionStore) exec(ctx context.Context, op, query string, args ...any) (int64, error) {
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

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSession(ctx context.Context, db execer, t *auth.RefreshToken) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (id, user_id, token_hash, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.UserID, t.TokenHash, t.ExpiresAt, t.CreatedAt)
	return err
}
