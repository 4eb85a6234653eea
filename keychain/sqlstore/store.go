// Package sqlstore keeps keychain items in a local SQLite database, the
// durable home of the default (app-private) session record.
package sqlstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

var _ keychain.Store = (*Store)(nil)

// ItemModel is the Bun model for one keychain item.
type ItemModel struct {
	bun.BaseModel `bun:"table:keychain_items"`

	Service        string    `bun:"service,pk"`
	Account        string    `bun:"account,pk"`
	AccessGroup    string    `bun:"access_group,pk"`
	Synchronizable bool      `bun:"synchronizable,pk"`
	Data           []byte    `bun:"data,notnull"`
	UpdatedAt      time.Time `bun:"updated_at,notnull"`
}

// Store implements keychain.Store using Bun.
type Store struct {
	db      *bun.DB
	nowTime func() time.Time
}

// New wraps an existing Bun database. Call Migrate before first use.
func New(db *bun.DB) *Store {
	return &Store{db: db, nowTime: time.Now}
}

// Open opens (creating if needed) a SQLite database at dsn and migrates it.
// Use "file::memory:?cache=shared" for a throwaway store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("[sqlstore Open] failed to open database: %w", err)
	}
	sqldb.SetMaxOpenConns(1)

	s := New(bun.NewDB(sqldb, sqlitedialect.New()))
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the items table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*ItemModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("[sqlstore Migrate] failed to create table: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key keychain.Key) ([]byte, error) {
	var item ItemModel
	err := s.whereKey(s.db.NewSelect().Model(&item), key).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, classify(err, "get")
	}
	return item.Data, nil
}

func (s *Store) Set(ctx context.Context, key keychain.Key, data []byte) error {
	item := &ItemModel{
		Service:        key.Service,
		Account:        key.Account,
		AccessGroup:    key.AccessGroup,
		Synchronizable: key.Synchronizable,
		Data:           data,
		UpdatedAt:      s.nowTime().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(item).
		On("CONFLICT (service, account, access_group, synchronizable) DO UPDATE").
		Set("data = EXCLUDED.data").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return classify(err, "set")
}

func (s *Store) Delete(ctx context.Context, key keychain.Key) error {
	q := s.db.NewDelete().Model((*ItemModel)(nil))
	_, err := q.
		Where("service = ?", key.Service).
		Where("account = ?", key.Account).
		Where("access_group = ?", key.AccessGroup).
		Where("synchronizable = ?", key.Synchronizable).
		Exec(ctx)
	return classify(err, "delete")
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) whereKey(q *bun.SelectQuery, key keychain.Key) *bun.SelectQuery {
	return q.
		Where("service = ?", key.Service).
		Where("account = ?", key.Account).
		Where("access_group = ?", key.AccessGroup).
		Where("synchronizable = ?", key.Synchronizable)
}

// classify maps database failures onto keychain errors.
func classify(err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return keychain.ErrNotFound
	}
	if errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, context.DeadlineExceeded) ||
		isUnavailableMessage(err) {
		return fmt.Errorf("%w: sqlite %s: %v", keychain.ErrUnavailable, op, err)
	}
	return fmt.Errorf("sqlite %s: %w", op, err)
}

func isUnavailableMessage(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database is closed")
}
