// Package memory provides in-process credential and session stores for
// development and tests. Data does not survive a restart.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

// UserStore implements auth.CredentialStore
type UserStore struct {
	mu      sync.RWMutex
	byID    map[string]*auth.User
	byEmail map[string]string
}

// NewUserStore creates an empty user store
func NewUserStore() *UserStore {
	return &UserStore{
		byID:    make(map[string]*auth.User),
		byEmail: make(map[string]string),
	}
}

func (s *UserStore) FindByID(_ context.Context, id string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.byID[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(u), nil
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[email]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return cloneUser(s.byID[id]), nil
}

func (s *UserStore) FindByVerificationTokenHash(_ context.Context, hash string, now time.Time) (*auth.User, error) {
	return s.findFirst(func(u *auth.User) bool { return verificationTokenLive(u, hash, now) })
}

func (s *UserStore) FindByResetTokenHash(_ context.Context, hash string, now time.Time) (*auth.User, error) {
	return s.findFirst(func(u *auth.User) bool { return resetTokenLive(u, hash, now) })
}

func (s *UserStore) Create(_ context.Context, user *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.byEmail[user.Email]; taken {
		return auth.ErrConflict
	}
	if _, taken := s.byID[user.ID]; taken {
		return auth.ErrConflict
	}
	s.byID[user.ID] = cloneUser(user)
	s.byEmail[user.Email] = user.ID
	return nil
}

func (s *UserStore) RecordLogin(_ context.Context, id, passwordHash string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok || u.PasswordHash != passwordHash {
		return false, nil
	}
	u.LastLogin = &at
	return true, nil
}

func (s *UserStore) SetResetToken(_ context.Context, id, hash string, expiry time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordResetTokenHash = hash
	u.PasswordResetExpiry = &expiry
	return nil
}

func (s *UserStore) ConsumeResetToken(_ context.Context, hash string, now time.Time, passwordHash string) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.match(func(u *auth.User) bool { return resetTokenLive(u, hash, now) })
	if u == nil {
		return nil, auth.ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.PasswordResetTokenHash = ""
	u.PasswordResetExpiry = nil
	return cloneUser(u), nil
}

func (s *UserStore) ConsumeVerificationToken(_ context.Context, hash string, now time.Time) (*auth.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.match(func(u *auth.User) bool { return verificationTokenLive(u, hash, now) })
	if u == nil {
		return nil, auth.ErrNotFound
	}
	u.EmailVerified = true
	u.EmailVerificationTokenHash = ""
	u.EmailVerificationExpiry = nil
	return cloneUser(u), nil
}

func (s *UserStore) findFirst(match func(*auth.User) bool) (*auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u := s.match(match); u != nil {
		return cloneUser(u), nil
	}
	return nil, auth.ErrNotFound
}

// match must be called with mu held
func (s *UserStore) match(pred func(*auth.User) bool) *auth.User {
	for _, u := range s.byID {
		if pred(u) {
			return u
		}
	}
	return nil
}

func verificationTokenLive(u *auth.User, hash string, now time.Time) bool {
	return hash != "" && u.EmailVerificationTokenHash == hash &&
		u.EmailVerificationExpiry != nil && u.EmailVerificationExpiry.After(now)
}

func resetTokenLive(u *auth.User, hash string, now time.Time) bool {
	return hash != "" && u.PasswordResetTokenHash == hash &&
		u.PasswordResetExpiry != nil && u.PasswordResetExpiry.After(now)
}

func cloneUser(u *auth.User) *auth.User {
	c := *u
	c.EmailVerificationExpiry = cloneTime(u.EmailVerificationExpiry)
	c.PasswordResetExpiry = cloneTime(u.PasswordResetExpiry)
	c.LastLogin = cloneTime(u.LastLogin)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// SessionStore implements auth.SessionStore
type SessionStore struct {
	mu     sync.Mutex
	byID   map[string]*auth.RefreshToken
	byHash map[string]string
}

// NewSessionStore creates an empty session store
func NewSessionStore() *SessionStore {
	return &SessionStore{
		byID:   make(map[string]*auth.RefreshToken),
		byHash: make(map[string]string),
	}
}

func (s *SessionStore) Create(_ context.Context, token *auth.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(token)
}

func (s *SessionStore) FindValid(_ context.Context, tokenHash, userID string, now time.Time) (*auth.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		return nil, auth.ErrNotFound
	}
	rt := s.byID[id]
	if rt.UserID != userID || rt.Expired(now) {
		return nil, auth.ErrNotFound
	}
	c := *rt
	return &c, nil
}

func (s *SessionStore) DeleteByID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remove(id), nil
}

func (s *SessionStore) DeleteByTokenHash(_ context.Context, tokenHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byHash[tokenHash]
	if !ok {
		return 0, nil
	}
	s.remove(id)
	return 1, nil
}

func (s *SessionStore) DeleteAllForUser(_ context.Context, userID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rt := range s.byID {
		if rt.UserID == userID {
			s.remove(id)
			n++
		}
	}
	return n, nil
}

func (s *SessionStore) Rotate(_ context.Context, oldID string, next *auth.RefreshToken) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.remove(oldID) {
		return false, nil
	}
	if err := s.insert(next); err != nil {
		return false, err
	}
	return true, nil
}

func (s *SessionStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, rt := range s.byID {
		if rt.Expired(now) {
			s.remove(id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of stored records, expired ones included
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// insert must be called with mu held
func (s *SessionStore) insert(token *auth.RefreshToken) error {
	if _, dup := s.byHash[token.TokenHash]; dup {
		return auth.ErrConflict
	}
	c := *token
	s.byID[token.ID] = &c
	s.byHash[token.TokenHash] = token.ID
	return nil
}

// remove must be called with mu held
func (s *SessionStore) remove(id string) bool {
	rt, ok := s.byID[id]
	if !ok {
		return false
	}
	delete(s.byID, id)
	delete(s.byHash, rt.TokenHash)
	return true
}
