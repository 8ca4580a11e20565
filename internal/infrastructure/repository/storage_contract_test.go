package repository

import (
	"context"
	"testing"
	"time"

	"fpp-app-layer/internal/domain"
	"fpp-app-layer/internal/ports"

	"github.com/stretchr/testify/require"
)

func onlineSession(id string, expires time.Time) *domain.Session {
	return &domain.Session{
		ID:          id,
		Shop:        "test-shop.myfunpinpin.com",
		State:       "some-state",
		IsOnline:    true,
		Scope:       "read_products,write_orders",
		Expires:     &expires,
		AccessToken: "shpat_token",
		OnlineAccessInfo: &domain.OnlineAccessInfo{
			ExpiresIn:           3600,
			AssociatedUserScope: "read_products",
			AssociatedUser: domain.AssociatedUser{
				ID:            902541635,
				FirstName:     "John",
				LastName:      "Smith",
				Email:         "john@example.com",
				EmailVerified: true,
				AccountOwner:  true,
				Locale:        "en",
			},
		},
	}
}

// testSessionStorage exercises the behaviour every storage backend shares
func testSessionStorage(t *testing.T, storage ports.SessionStorage) {
	ctx := context.Background()
	expires := time.Now().Add(time.Hour).UTC().Truncate(time.Second)

	t.Run("load missing", func(t *testing.T) {
		session, err := storage.LoadSession(ctx, "missing")
		require.NoError(t, err)
		require.Nil(t, session)
	})

	t.Run("store and load online session", func(t *testing.T) {
		session := onlineSession("test-shop.myfunpinpin.com_902541635", expires)

		stored, err := storage.StoreSession(ctx, session)
		require.NoError(t, err)
		require.True(t, stored)

		loaded, err := storage.LoadSession(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		require.Equal(t, session.ID, loaded.ID)
		require.Equal(t, session.Shop, loaded.Shop)
		require.Equal(t, session.State, loaded.State)
		require.True(t, loaded.IsOnline)
		require.Equal(t, session.Scope, loaded.Scope)
		require.Equal(t, session.AccessToken, loaded.AccessToken)
		require.NotNil(t, loaded.Expires)
		require.True(t, expires.Equal(*loaded.Expires))
		require.Equal(t, session.OnlineAccessInfo, loaded.OnlineAccessInfo)
	})

	t.Run("store offline session without expiry", func(t *testing.T) {
		session := domain.NewSession("offline_test-shop.myfunpinpin.com", "test-shop.myfunpinpin.com", "state", false)

		stored, err := storage.StoreSession(ctx, session)
		require.NoError(t, err)
		require.True(t, stored)

		loaded, err := storage.LoadSession(ctx, session.ID)
		require.NoError(t, err)
		require.NotNil(t, loaded)
		require.False(t, loaded.IsOnline)
		require.Nil(t, loaded.Expires)
		require.Nil(t, loaded.OnlineAccessInfo)
	})

	t.Run("store replaces", func(t *testing.T) {
		session := domain.NewSession("replace-me", "test-shop.myfunpinpin.com", "state", false)
		_, err := storage.StoreSession(ctx, session)
		require.NoError(t, err)

		session.AccessToken = "new-token"
		session.Scope = "write_products"
		_, err = storage.StoreSession(ctx, session)
		require.NoError(t, err)

		loaded, err := storage.LoadSession(ctx, session.ID)
		require.NoError(t, err)
		require.Equal(t, "new-token", loaded.AccessToken)
		require.Equal(t, "write_products", loaded.Scope)
	})

	t.Run("delete", func(t *testing.T) {
		session := domain.NewSession("delete-me", "test-shop.myfunpinpin.com", "state", false)
		_, err := storage.StoreSession(ctx, session)
		require.NoError(t, err)

		deleted, err := storage.DeleteSession(ctx, session.ID)
		require.NoError(t, err)
		require.True(t, deleted)

		loaded, err := storage.LoadSession(ctx, session.ID)
		require.NoError(t, err)
		require.Nil(t, loaded)

		// deleting a missing session is not an error
		deleted, err = storage.DeleteSession(ctx, session.ID)
		require.NoError(t, err)
		require.True(t, deleted)
	})
}
