package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/samber/oops"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/mark-chris/storefront-auth/internal/auth"
)

type userDoc struct {
	ID                       string     `bson:"_id"`
	Name                     string     `bson:"name"`
	Email                    string     `bson:"email"`
	Password                 string     `bson:"password"`
	Phone                    string     `bson:"phone"`
	Role                     string     `bson:"role"`
	EmailVerified            bool       `bson:"emailVerified"`
	EmailVerificationToken   string     `bson:"emailVerificationToken,omitempty"`
	EmailVerificationExpires *time.Time `bson:"emailVerificationExpires,omitempty"`
	PasswordResetToken       string     `bson:"passwordResetToken,omitempty"`
	PasswordResetExpires     *time.Time `bson:"passwordResetExpires,omitempty"`
	LastLogin                *time.Time `bson:"lastLogin,omitempty"`
	CreatedAt                time.Time  `bson:"createdAt"`
}

func toUserDoc(u *auth.User) *userDoc {
	return &userDoc{
		ID:                       u.ID,
		Name:                     u.Name,
		Email:                    u.Email,
		Password:                 u.PasswordHash,
		Phone:                    u.Phone,
		Role:                     string(u.Role),
		EmailVerified:            u.EmailVerified,
		EmailVerificationToken:   u.EmailVerificationTokenHash,
		EmailVerificationExpires: u.EmailVerificationExpiry,
		PasswordResetToken:       u.PasswordResetTokenHash,
		PasswordResetExpires:     u.PasswordResetExpiry,
		LastLogin:                u.LastLogin,
		CreatedAt:                u.CreatedAt,
	}
}

func (d *userDoc) toUser() *auth.User {
	return &auth.User{
		ID:                         d.ID,
		Name:                       d.Name,
		Email:                      d.Email,
		PasswordHash:               d.Password,
		Phone:                      d.Phone,
		Role:                       auth.Role(d.Role),
		EmailVerified:              d.EmailVerified,
		EmailVerificationTokenHash: d.EmailVerificationToken,
		EmailVerificationExpiry:    d.EmailVerificationExpires,
		PasswordResetTokenHash:     d.PasswordResetToken,
		PasswordResetExpiry:        d.PasswordResetExpires,
		LastLogin:                  d.LastLogin,
		CreatedAt:                  d.CreatedAt,
	}
}

// UserStore implements auth.CredentialStore
type UserStore struct {
	collection *mongo.Collection
}

// NewUserStore creates a user store on db
func NewUserStore(db *mongo.Database) *UserStore {
	return NewUserStoreWithCollection(db.Collection(usersCollection))
}

// NewUserStoreWithCollection creates a user store on an explicit collection
func NewUserStoreWithCollection(c *mongo.Collection) *UserStore {
	return &UserStore{collection: c}
}

func (s *UserStore) FindByID(ctx context.Context, id string) (*auth.User, error) {
	return s.findOne(ctx, "find by id", bson.M{"_id": id})
}

func (s *UserStore) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	return s.findOne(ctx, "find by email", bson.M{"email": email})
}

func (s *UserStore) FindByVerificationTokenHash(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	return s.findOne(ctx, "find by verification token", bson.M{
		"emailVerificationToken":   hash,
		"emailVerificationExpires": bson.M{"$gt": now},
	})
}

func (s *UserStore) FindByResetTokenHash(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	return s.findOne(ctx, "find by reset token", bson.M{
		"passwordResetToken":   hash,
		"passwordResetExpires": bson.M{"$gt": now},
	})
}

func (s *UserStore) Create(ctx context.Context, u *auth.User) error {
	if _, err := s.collection.InsertOne(ctx, toUserDoc(u)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return auth.ErrConflict
		}
		return oops.Code("DB_ERROR").With("operation", "create user").Wrap(err)
	}
	return nil
}

// RecordLogin only matches while the stored password is the one that was checked
func (s *UserStore) RecordLogin(ctx context.Context, id, passwordHash string, at time.Time) (bool, error) {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "password": passwordHash},
		bson.M{"$set": bson.M{"lastLogin": at}})
	if err != nil {
		return false, oops.Code("DB_ERROR").With("operation", "record login").With("user_id", id).Wrap(err)
	}
	return res.MatchedCount == 1, nil
}

func (s *UserStore) SetResetToken(ctx context.Context, id, hash string, expiry time.Time) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"passwordResetToken": hash, "passwordResetExpires": expiry}})
	if err != nil {
		return oops.Code("DB_ERROR").With("operation", "set reset token").With("user_id", id).Wrap(err)
	}
	if res.MatchedCount == 0 {
		return auth.ErrNotFound
	}
	return nil
}

func (s *UserStore) ConsumeResetToken(ctx context.Context, hash string, now time.Time, passwordHash string) (*auth.User, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	return s.findOneAndUpdate(ctx, "consume reset token",
		bson.M{
			"passwordResetToken":   hash,
			"passwordResetExpires": bson.M{"$gt": now},
		},
		bson.M{
			"$set":   bson.M{"password": passwordHash},
			"$unset": bson.M{"passwordResetToken": "", "passwordResetExpires": ""},
		})
}

func (s *UserStore) ConsumeVerificationToken(ctx context.Context, hash string, now time.Time) (*auth.User, error) {
	if hash == "" {
		return nil, auth.ErrNotFound
	}
	return s.findOneAndUpdate(ctx, "consume verification token",
		bson.M{
			"emailVerificationToken":   hash,
			"emailVerificationExpires": bson.M{"$gt": now},
		},
		bson.M{
			"$set":   bson.M{"emailVerified": true},
			"$unset": bson.M{"emailVerificationToken": "", "emailVerificationExpires": ""},
		})
}

func (s *UserStore) findOneAndUpdate(ctx context.Context, op string, filter, update bson.M) (*auth.User, error) {
	var doc userDoc
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	if err := s.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.Code("DB_ERROR").With("operation", op).Wrap(err)
	}
	return doc.toUser(), nil
}

func (s *UserStore) findOne(ctx context.Context, op string, filter bson.M) (*auth.User, error) {
	var doc userDoc
	if err := s.collection.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, auth.ErrNotFound
		}
		return nil, oops.Code("DB_ERROR").With("operation", op).Wrap(err)
	}
	return doc.toUser(), nil
}
