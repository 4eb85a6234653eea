package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/jrsteele09/go-auth-client/keychain/redisstore"
	"github.com/jrsteele09/go-auth-client/keychain/sqlstore"
	"github.com/rs/zerolog/log"
)

const keychainFile = "keychain.db"

// openKeychain picks redis when a URL is configured, a local sqlite file
// otherwise.
func openKeychain(ctx context.Context, c config.StorageConfig) (keychain.Store, func(), error) {
	if url := c.GetRedisURL(); url != "" {
		store, err := redisstore.Connect(ctx, url, redisstore.WithDeviceID(c.GetDeviceID()))
		if err != nil {
			return nil, nil, fmt.Errorf("redisstore.Connect: %w", err)
		}
		log.Info().Str("device", c.GetDeviceID()).Msg("🗄️  keychain: redis")
		return store, closer(store.Close), nil
	}

	if err := os.MkdirAll(c.GetDataFolder(), 0o700); err != nil {
		return nil, nil, fmt.Errorf("creating data folder: %w", err)
	}
	path := filepath.Join(c.GetDataFolder(), keychainFile)
	store, err := sqlstore.Open(ctx, "file:"+path+"?cache=shared")
	if err != nil {
		return nil, nil, fmt.Errorf("sqlstore.Open: %w", err)
	}
	log.Info().Str("path", path).Msg("🗄️  keychain: sqlite")
	return store, closer(store.Close), nil
}

func closer(closeFn func() error) func() {
	return func() {
		if err := closeFn(); err != nil {
			log.Warn().Err(err).Msg("failed to close keychain")
		}
	}
}
