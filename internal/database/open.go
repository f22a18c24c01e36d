package database

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/mark-chris/storefront-auth/internal/auth"
	"github.com/mark-chris/storefront-auth/internal/database/memory"
	"github.com/mark-chris/storefront-auth/internal/database/mongostore"
	"github.com/mark-chris/storefront-auth/internal/database/postgres"
)

// DefaultMongoDatabase is used when no database name is configured
const DefaultMongoDatabase = "storefront"

// Config selects the store backend
type Config struct {
	Driver string
	URL    string
	// Name is the MongoDB database name.
	Name string
	// AutoMigrate applies pending postgres migrations on open.
	AutoMigrate bool
	IsDev       bool
}

// Stores bundles the opened stores with the handle that owns their connection
type Stores struct {
	Users    auth.CredentialStore
	Sessions auth.SessionStore
	Driver   string

	closeFn func(ctx context.Context) error
	pingFn  func(ctx context.Context) error
}

// Ping checks that the backend is reachable. The memory backend always is.
func (s *Stores) Ping(ctx context.Context) error {
	if s.pingFn == nil {
		return nil
	}
	return s.pingFn(ctx)
}

// Close releases the underlying connection
func (s *Stores) Close(ctx context.Context) error {
	if s.closeFn == nil {
		return nil
	}
	return s.closeFn(ctx)
}

// Open validates cfg and connects the configured backend. The connection is
// established once here and shared by both stores.
func Open(ctx context.Context, cfg Config, log logrus.FieldLogger) (*Stores, error) {
	if err := ValidateDatabaseURL(cfg.Driver, cfg.URL, cfg.IsDev); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverMemory:
		log.Warn("using in-memory stores, data will be lost on restart")
		return &Stores{
			Users:    memory.NewUserStore(),
			Sessions: memory.NewSessionStore(),
			Driver:   cfg.Driver,
		}, nil

	case DriverPostgres:
		db, err := postgres.Open(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db, "up"); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		log.WithField("driver", cfg.Driver).Info("connected to database")
		return &Stores{
			Users:    postgres.NewUserStore(db),
			Sessions: postgres.NewSessionStore(db),
			Driver:   cfg.Driver,
			closeFn:  func(context.Context) error { return db.Close() },
			pingFn:   db.PingContext,
		}, nil

	case DriverMongo:
		client, err := mongostore.Connect(ctx, cfg.URL)
		if err != nil {
			return nil, err
		}
		name := cfg.Name
		if name == "" {
			name = DefaultMongoDatabase
		}
		stores, err := mongoStores(ctx, client.Database(name), client.Disconnect,
			func(ctx context.Context) error { return client.Ping(ctx, nil) })
		if err != nil {
			return nil, err
		}
		log.WithFields(logrus.Fields{"driver": cfg.Driver, "database": name}).Info("connected to database")
		return stores, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// mongoStores builds the stores on db once its indexes exist. Email
// uniqueness and single-use session tokens depend on them, so a failure
// closes the connection and is returned.
func mongoStores(ctx context.Context, db *mongo.Database, closeFn, pingFn func(context.Context) error) (*Stores, error) {
	if err := mongostore.EnsureIndexes(ctx, db); err != nil {
		_ = closeFn(context.Background())
		return nil, err
	}
	return &Stores{
		Users:    mongostore.NewUserStore(db),
		Sessions: mongostore.NewSessionStore(db),
		Driver:   DriverMongo,
		closeFn:  closeFn,
		pingFn:   pingFn,
	}, nil
}
