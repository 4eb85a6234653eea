package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/internal/utils"
	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/jrsteele09/go-auth-client/keychain/keychainfake"
	"github.com/jrsteele09/go-auth-client/persistence"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/stretchr/testify/require"
)

var testIdentity = persistence.Identity{AppID: "app-1", APIKey: "key-1", ProjectID: "proj-1"}

func setupTestFixture() (*persistence.Store, *keychainfake.FakeKeychain) {
	kc := keychainfake.NewFakeKeychain()
	return persistence.New(kc, testIdentity), kc
}

func testSession(uid string) *sessions.Session {
	return &sessions.Session{
		UID:               uid,
		AccessToken:       "at-" + uid,
		AccessTokenExpiry: time.UnixMilli(1_700_000_000_000).UTC(),
		RefreshToken:      "rt-" + uid,
		TenantID:          utils.Ptr("tenant-a"),
		APIKey:            "key-1",
		Email:             uid + "@example.com",
	}
}

func TestKeyFor(t *testing.T) {
	store, _ := setupTestFixture()

	require.Equal(t, keychain.Key{Service: "auth_app-1", Account: "app-1_current_user"},
		store.KeyFor(persistence.Default()))
	require.Equal(t, keychain.Key{
		Service:        "auth_stored_user",
		Account:        "proj-1_key-1",
		AccessGroup:    "group-A",
		Synchronizable: true,
	}, store.KeyFor(persistence.Shared("group-A", true)))
	require.True(t, persistence.Shared("", true).IsDefault())
}

func TestStore_RoundTrip(t *testing.T) {
	for _, scope := range []persistence.Scope{persistence.Default(), persistence.Shared("group-A", false)} {
		t.Run(scope.String(), func(t *testing.T) {
			store, kc := setupTestFixture()
			ctx := context.Background()

			loaded, err := store.Load(ctx, scope)
			require.NoError(t, err)
			require.Nil(t, loaded)

			session := testSession("u1")
			require.NoError(t, store.Save(ctx, session, scope))
			require.True(t, kc.Has(store.KeyFor(scope)))

			loaded, err = store.Load(ctx, scope)
			require.NoError(t, err)
			require.Equal(t, session, loaded)

			require.NoError(t, store.Save(ctx, nil, scope))
			require.False(t, kc.Has(store.KeyFor(scope)))
			require.NoError(t, store.Delete(ctx, scope))
		})
	}
}

func TestStore_LoadErrors(t *testing.T) {
	t.Run("corrupt", func(t *testing.T) {
		store, kc := setupTestFixture()
		kc.Put(store.KeyFor(persistence.Default()), []byte("not json"))

		_, err := store.Load(context.Background(), persistence.Default())
		require.ErrorIs(t, err, sessions.ErrCorrupt)
	})

	t.Run("unavailable", func(t *testing.T) {
		store, kc := setupTestFixture()
		kc.Seal()

		_, err := store.Load(context.Background(), persistence.Default())
		require.ErrorIs(t, err, keychain.ErrUnavailable)
	})
}

func TestStore_SwitchScope(t *testing.T) {
	store, kc := setupTestFixture()
	ctx := context.Background()
	shared := persistence.Shared("group-A", false)

	require.NoError(t, store.Save(ctx, testSession("local"), persistence.Default()))
	require.NoError(t, store.Save(ctx, testSession("shared"), shared))

	session, err := store.SwitchScope(ctx, persistence.Default(), shared, nil)
	require.NoError(t, err)
	require.Equal(t, "shared", session.UID)
	require.False(t, kc.Has(store.KeyFor(persistence.Default())))

	// Switching back keeps the shared record.
	session, err = store.SwitchScope(ctx, shared, persistence.Default(), nil)
	require.NoError(t, err)
	require.Nil(t, session)
	require.True(t, kc.Has(store.KeyFor(shared)))
}

func TestStore_SwitchScopeEmptyTarget(t *testing.T) {
	store, kc := setupTestFixture()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testSession("local"), persistence.Default()))

	session, err := store.SwitchScope(ctx, persistence.Default(), persistence.Shared("group-B", true), nil)
	require.NoError(t, err)
	require.Nil(t, session)
	require.Equal(t, 0, kc.Len())
}

func TestStore_SwitchScopeRejected(t *testing.T) {
	store, kc := setupTestFixture()
	ctx := context.Background()
	shared := persistence.Shared("group-A", false)
	errRejected := errors.New("rejected")

	require.NoError(t, store.Save(ctx, testSession("local"), persistence.Default()))
	require.NoError(t, store.Save(ctx, testSession("shared"), shared))

	session, err := store.SwitchScope(ctx, persistence.Default(), shared, func(s *sessions.Session) error {
		require.Equal(t, "shared", s.UID)
		return errRejected
	})
	require.ErrorIs(t, err, errRejected)
	require.Nil(t, session)
	require.True(t, kc.Has(store.KeyFor(persistence.Default())))
	require.True(t, kc.Has(store.KeyFor(shared)))
}

func TestStore_SwitchScopeCorruptTarget(t *testing.T) {
	store, kc := setupTestFixture()
	ctx := context.Background()
	shared := persistence.Shared("group-A", false)

	require.NoError(t, store.Save(ctx, testSession("local"), persistence.Default()))
	kc.Put(store.KeyFor(shared), []byte("not json"))

	session, err := store.SwitchScope(ctx, persistence.Default(), shared, func(*sessions.Session) error {
		return errors.New("not called for a missing session")
	})
	require.NoError(t, err)
	require.Nil(t, session)
	require.False(t, kc.Has(store.KeyFor(shared)))
	require.False(t, kc.Has(store.KeyFor(persistence.Default())))
}
