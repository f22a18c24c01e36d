package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

type sessionDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Token     string    `bson:"token"`
	ExpiresAt time.Time `bson:"expiresAt"`
	CreatedAt time.Time `bson:"createdAt"`
}

// SessionStore implements auth.SessionStore
type SessionStore struct {
	collection *mongo.Collection
}

// NewSessionStore creates a session store on db
func NewSessionStore(db *mongo.Database) *SessionStore {
	return NewSessionStoreWithCollection(db.Collection(sessionsCollection))
}

// NewSessionStoreWithCollection creates a session store on an explicit collection
func NewSessionStoreWithCollection(c *mongo.Collection) *SessionStore {
	return &SessionStore{collection: c}
}

func (s *SessionStore) Create(ctx context.Context, t *auth.RefreshToken) error {
	if _, err := s.collection.InsertOne(ctx, toSessionDoc(t)); err != nil {
		return oops.Code("DB_ERROR").With("operation", "create session").With("user_id", t.UserID).Wrap(err)
	}
	return nil
}

func (s *SessionStore) FindValid(ctx context.Context, tokenHash, userID string, now time.Time) (*auth.RefreshToken, error) {
	var doc sessionDoc
	err := s.collection.FindOne(ctx, bson.M{
		"token":     tokenHash,
		"userId":    userID,
		"expiresAt": bson.M{"$gt": now},
	}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.Code("DB_ERROR").With("operation", "find session").With("user_id", userID).Wrap(err)
	}
	return &auth.RefreshToken{
		ID:        doc.ID,
		UserID:    doc.UserID,
		TokenHash: doc.Token,
		ExpiresAt: doc.ExpiresAt,
		CreatedAt: doc.CreatedAt,
	}, nil
}

func (s *SessionStore) DeleteByID(ctx context.Context, id string) (bool, error) {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, oops.Code("DB_ERROR").With("operation", "delete session").Wrap(err)
	}
	return res.DeletedCount > 0, nil
}

func (s *SessionStore) DeleteByTokenHash(ctx context.Context, tokenHash string) (int64, error) {
	return s.deleteMany(ctx, "delete session by hash", bson.M{"token": tokenHash})
}

func (s *SessionStore) DeleteAllForUser(ctx context.Context, userID string) (int64, error) {
	return s.deleteMany(ctx, "delete user sessions", bson.M{"userId": userID})
}

// DeleteExpired complements the TTL index, whose monitor only runs once a minute
func (s *SessionStore) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return s.deleteMany(ctx, "delete expired sessions", bson.M{"expiresAt": bson.M{"$lte": now}})
}

// Rotate inserts the successor before removing the old document, so a failed
// insert leaves the old session usable. Only the caller whose delete removed
// the old document keeps its successor; a loser deletes its own insert.
func (s *SessionStore) Rotate(ctx context.Context, oldID string, next *auth.RefreshToken) (bool, error) {
	if err := s.Create(ctx, next); err != nil {
		return false, err
	}

	deleted, err := s.DeleteByID(ctx, oldID)
	if err == nil && deleted {
		return true, nil
	}
	if _, cerr := s.DeleteByID(ctx, next.ID); cerr != nil && err == nil {
		err = cerr
	}
	return false, err
}

func (s *SessionStore) deleteMany(ctx context.Context, op string, filter bson.M) (int64, error) {
	res, err := s.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, oops.Code("DB_ERROR").With("operation", op).Wrap(err)
	}
	return res.DeletedCount, nil
}

func toSessionDoc(t *auth.RefreshToken) *sessionDoc {
	return &sessionDoc{
		ID:        t.ID,
		UserID:    t.UserID,
		Token:     t.TokenHash,
		ExpiresAt: t.ExpiresAt,
		CreatedAt: t.CreatedAt,
	}
}
