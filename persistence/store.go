// Package persistence saves and restores the current session through a
// keychain.Store, under either the app-private default scope or a shared
// access-group scope.
package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/jrsteele09/go-auth-client/sessions"
)

// Store is the persistence layer for one app identity.
type Store struct {
	keychain keychain.Store
	identity Identity
}

func New(kc keychain.Store, identity Identity) *Store {
	return &Store{keychain: kc, identity: identity}
}

// Identity returns the app identity keys are derived from.
func (s *Store) Identity() Identity {
	return s.identity
}

// Keychain returns the underlying secure store.
func (s *Store) Keychain() keychain.Store {
	return s.keychain
}

// KeyFor returns the record key for scope.
func (s *Store) KeyFor(scope Scope) keychain.Key {
	return s.identity.KeyFor(scope)
}

// Load returns the stored session, nil when none exists. A record that
// cannot be decoded yields an error wrapping sessions.ErrCorrupt; a store
// that cannot be reached yields one wrapping keychain.ErrUnavailable.
func (s *Store) Load(ctx context.Context, scope Scope) (*sessions.Session, error) {
	key := s.KeyFor(scope)
	data, err := s.keychain.Get(ctx, key)
	if errors.Is(err, keychain.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("[persistence Load] %s: %w", key, err)
	}

	session, err := sessions.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("[persistence Load] %s: %w", key, err)
	}
	return session, nil
}

// Save writes the session under scope; a nil session deletes the record.
func (s *Store) Save(ctx context.Context, session *sessions.Session, scope Scope) error {
	if session == nil {
		return s.Delete(ctx, scope)
	}

	data, err := sessions.Encode(session)
	if err != nil {
		return fmt.Errorf("[persistence Save] %w", err)
	}
	key := s.KeyFor(scope)
	if err := s.keychain.Set(ctx, key, data); err != nil {
		return fmt.Errorf("[persistence Save] %s: %w", key, err)
	}
	return nil
}

// Delete removes the record under scope. Deleting nothing succeeds.
func (s *Store) Delete(ctx context.Context, scope Scope) error {
	return Purge(ctx, s.keychain, s.KeyFor(scope))
}

// SwitchScope reads the session stored under to. A corrupt record there is
// removed and read as no session. accept, when set, vets a found session
// before anything changes; its error aborts the switch and leaves every
// record in place. Moving from the default scope to a shared one removes the
// default-scope record.
func (s *Store) SwitchScope(ctx context.Context, from, to Scope, accept func(*sessions.Session) error) (*sessions.Session, error) {
	session, err := s.Load(ctx, to)
	if errors.Is(err, sessions.ErrCorrupt) {
		if err := s.Delete(ctx, to); err != nil {
			return nil, fmt.Errorf("[persistence SwitchScope] %w", err)
		}
		session, err = nil, nil
	}
	if err != nil {
		return nil, err
	}
	if accept != nil && session != nil {
		if err := accept(session); err != nil {
			return nil, err
		}
	}
	if from.IsDefault() && !to.IsDefault() {
		if err := s.Delete(ctx, from); err != nil {
			return nil, fmt.Errorf("[persistence SwitchScope] %w", err)
		}
	}
	return session, nil
}

// Purge deletes the item at an explicit key.
func Purge(ctx context.Context, kc keychain.Store, key keychain.Key) error {
	if err := kc.Delete(ctx, key); err != nil && !errors.Is(err, keychain.ErrNotFound) {
		return fmt.Errorf("[persistence Purge] %s: %w", key, err)
	}
	return nil
}
