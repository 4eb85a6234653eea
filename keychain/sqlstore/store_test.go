package sqlstore_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	errs "github.com/jrsteele09/go-auth-client/internal/errors"
	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/jrsteele09/go-auth-client/keychain/sqlstore"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *sqlstore.Store {
	t.Helper()

	// A unique name keeps shared-cache memory databases apart between tests.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := sqlstore.Open(context.Background(), dsn)
	require.NoError(t, err)
	return s
}

func TestStore_SetGetDelete(t *testing.T) {
	s := setupStore(t)
	defer s.Close()
	ctx := context.Background()
	key := keychain.Key{Service: "auth_app", Account: "app_current_user"}

	_, err := s.Get(ctx, key)
	require.ErrorIs(t, err, keychain.ErrNotFound)
	require.ErrorIs(t, err, errs.ErrNotFound)

	require.NoError(t, s.Set(ctx, key, []byte("blob-1")))
	require.NoError(t, s.Set(ctx, key, []byte("blob-2")))

	data, err := s.Get(ctx, key)
	require.NoError(t, err)
	require.Equal(t, []byte("blob-2"), data)

	require.NoError(t, s.Delete(ctx, key))
	require.NoError(t, s.Delete(ctx, key))
	_, err = s.Get(ctx, key)
	require.ErrorIs(t, err, keychain.ErrNotFound)
}

func TestStore_KeysAreIndependent(t *testing.T) {
	s := setupStore(t)
	defer s.Close()
	ctx := context.Background()

	base := keychain.Key{Service: "auth_stored_user", Account: "p_key"}
	grouped := base
	grouped.AccessGroup = "group-A"
	synced := grouped
	synced.Synchronizable = true

	require.NoError(t, s.Set(ctx, base, []byte("base")))
	require.NoError(t, s.Set(ctx, grouped, []byte("grouped")))
	require.NoError(t, s.Set(ctx, synced, []byte("synced")))

	for key, want := range map[keychain.Key]string{base: "base", grouped: "grouped", synced: "synced"} {
		data, err := s.Get(ctx, key)
		require.NoError(t, err)
		require.Equal(t, want, string(data))
	}

	require.NoError(t, s.Delete(ctx, grouped))
	_, err := s.Get(ctx, grouped)
	require.ErrorIs(t, err, keychain.ErrNotFound)
	_, err = s.Get(ctx, synced)
	require.NoError(t, err)
}

func TestStore_ClosedIsUnavailable(t *testing.T) {
	s := setupStore(t)
	require.NoError(t, s.Close())

	_, err := s.Get(context.Background(), keychain.Key{Service: "svc", Account: "acct"})
	require.ErrorIs(t, err, keychain.ErrUnavailable)
}
