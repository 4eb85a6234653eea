// Package keychain defines the secure key/value storage the session
// persistence layer writes through. Implementations must make Get, Set and
// Delete individually atomic and safe for concurrent use.
package keychain

import (
	"context"
	"errors"
	"fmt"

	errs "github.com/jrsteele09/go-auth-client/internal/errors"
)

var (
	// ErrNotFound is returned by Get when no item exists for the key.
	ErrNotFound = errs.Wrapf(errs.ErrNotFound, "keychain item")

	// ErrUnavailable is returned when the store cannot be reached right now
	// (locked, sealed, disconnected). Callers may retry once it is available.
	ErrUnavailable = errors.New("keychain unavailable")
)

// Key addresses one stored item.
type Key struct {
	Service        string // Storage service name derived from the app identity
	Account        string // Item name within the service
	AccessGroup    string // Shared access group, empty for the app-private area
	Synchronizable bool   // Shared across the user's devices
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s(sync=%t)", k.Service, k.Account, k.AccessGroup, k.Synchronizable)
}

// Store is the secure storage collaborator.
type Store interface {
	// Get returns the item data or ErrNotFound
	Get(ctx context.Context, key Key) ([]byte, error)

	// Set creates or replaces the item
	Set(ctx context.Context, key Key, data []byte) error

	// Delete removes the item; deleting a missing item is not an error
	Delete(ctx context.Context, key Key) error
}

// AvailabilityNotifier is implemented by stores that can signal when they
// become available again after returning ErrUnavailable.
type AvailabilityNotifier interface {
	// Available returns a channel closed the next time the store becomes available
	Available() <-chan struct{}
}
