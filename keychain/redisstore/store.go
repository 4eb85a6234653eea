// Package redisstore keeps keychain items in Redis so that sessions saved in a
// shared access group follow the user across devices.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/redis/go-redis/v9"
)

var _ keychain.Store = (*Store)(nil)

const (
	defaultPrefix   = "keychain"
	defaultDeviceID = "local"
)

// Store is a keychain.Store backed by a Redis client.
type Store struct {
	client   redis.UniversalClient
	prefix   string
	deviceID string
	ttl      time.Duration
}

type Option func(*Store)

// WithPrefix sets the key namespace.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// WithDeviceID scopes non-synchronizable items to one device.
func WithDeviceID(id string) Option {
	return func(s *Store) {
		s.deviceID = id
	}
}

// WithTTL expires items that have not been rewritten for ttl (0 keeps them forever).
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{
		client:   client,
		prefix:   defaultPrefix,
		deviceID: defaultDeviceID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect parses a redis:// or rediss:// URL, pings the server and returns a Store.
func Connect(ctx context.Context, url string, opts ...Option) (*Store, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("[redisstore Connect] failed to parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, classify(err, "ping")
	}
	return New(client, opts...), nil
}

func (s *Store) Get(ctx context.Context, key keychain.Key) ([]byte, error) {
	data, err := s.client.Get(ctx, s.redisKey(key)).Bytes()
	if err != nil {
		return nil, classify(err, "get")
	}
	return data, nil
}

func (s *Store) Set(ctx context.Context, key keychain.Key, data []byte) error {
	return classify(s.client.Set(ctx, s.redisKey(key), data, s.ttl).Err(), "set")
}

func (s *Store) Delete(ctx context.Context, key keychain.Key) error {
	return classify(s.client.Del(ctx, s.redisKey(key)).Err(), "delete")
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) redisKey(key keychain.Key) string {
	parts := []string{s.prefix}
	if !key.Synchronizable {
		parts = append(parts, "device", s.deviceID)
	}
	group := key.AccessGroup
	if group == "" {
		group = "-"
	}
	parts = append(parts, key.Service, group, key.Account)
	return strings.Join(parts, ":")
}

// classify maps Redis failures onto keychain errors so callers can tell a
// missing item from an unreachable server.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, redis.Nil) {
		return keychain.ErrNotFound
	}

	var netErr net.Error
	if errors.Is(err, redis.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.As(err, &netErr) {
		return fmt.Errorf("%w: redis %s: %v", keychain.ErrUnavailable, op, err)
	}
	return fmt.Errorf("redis %s: %w", op, err)
}
