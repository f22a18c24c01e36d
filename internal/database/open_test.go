package database

import (
	"context"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/mark-chris/storefront-auth/internal/database/memory"
	"github.com/mark-chris/storefront-auth/internal/database/mongostore"
)

func TestOpen_Memory(t *testing.T) {
	log, hook := test.NewNullLogger()

	stores, err := Open(context.Background(), Config{Driver: DriverMemory, IsDev: true}, log)
	require.NoError(t, err)
	assert.IsType(t, &memory.UserStore{}, stores.Users)
	assert.IsType(t, &memory.SessionStore{}, stores.Sessions)
	assert.NoError(t, stores.Ping(context.Background()))
	assert.NoError(t, stores.Close(context.Background()))
	require.NotNil(t, hook.LastEntry())
	assert.Contains(t, hook.LastEntry().Message, "in-memory")
}

func TestOpen_RejectsInvalidConfig(t *testing.T) {
	log, _ := test.NewNullLogger()
	ctx := context.Background()

	_, err := Open(ctx, Config{Driver: DriverMemory, IsDev: false}, log)
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: DriverPostgres, URL: "postgres://u:p@db:5432/shop?sslmode=disable"}, log)
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: "oracle", URL: "oracle://db:1521/shop", IsDev: true}, log)
	assert.Error(t, err)
}

func TestMongoStores(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	ctx := context.Background()
	noPing := func(context.Context) error { return nil }

	mt.Run("index failure closes the connection", func(mt *mtest.T) {
		closed := 0
		closeFn := func(context.Context) error { closed++; return nil }
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    13,
			Name:    "Unauthorized",
			Message: "not authorized to create indexes",
		}))

		stores, err := mongoStores(ctx, mt.DB, closeFn, noPing)
		require.Error(mt, err)
		assert.Nil(mt, stores)
		assert.Equal(mt, 1, closed)
	})

	mt.Run("indexes created", func(mt *mtest.T) {
		closeFn := func(context.Context) error { return nil }
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		stores, err := mongoStores(ctx, mt.DB, closeFn, noPing)
		require.NoError(mt, err)
		assert.IsType(mt, &mongostore.UserStore{}, stores.Users)
		assert.IsType(mt, &mongostore.SessionStore{}, stores.Sessions)
		assert.Equal(mt, DriverMongo, stores.Driver)
	})
}
