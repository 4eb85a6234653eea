package keychainfake

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-auth-client/keychain"
)

var (
	_ keychain.Store                = (*FakeKeychain)(nil)
	_ keychain.AvailabilityNotifier = (*FakeKeychain)(nil)
)

// FakeKeychain is an in-memory keychain. It can be sealed to simulate the
// platform store being locked, and can fail writes on demand.
type FakeKeychain struct {
	items     map[keychain.Key][]byte
	sealed    bool
	failSets  error
	available chan struct{}
	lock      sync.RWMutex

	Gets    int
	Sets    int
	Deletes int
}

func NewFakeKeychain() *FakeKeychain {
	return &FakeKeychain{
		items:     make(map[keychain.Key][]byte),
		available: make(chan struct{}),
	}
}

func (fk *FakeKeychain) Get(_ context.Context, key keychain.Key) ([]byte, error) {
	fk.lock.Lock()
	defer fk.lock.Unlock()
	fk.Gets++

	if fk.sealed {
		return nil, keychain.ErrUnavailable
	}
	data, ok := fk.items[key]
	if !ok {
		return nil, keychain.ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

func (fk *FakeKeychain) Set(_ context.Context, key keychain.Key, data []byte) error {
	fk.lock.Lock()
	defer fk.lock.Unlock()
	fk.Sets++

	if fk.sealed {
		return keychain.ErrUnavailable
	}
	if fk.failSets != nil {
		return fk.failSets
	}
	fk.items[key] = append([]byte(nil), data...)
	return nil
}

func (fk *FakeKeychain) Delete(_ context.Context, key keychain.Key) error {
	fk.lock.Lock()
	defer fk.lock.Unlock()
	fk.Deletes++

	if fk.sealed {
		return keychain.ErrUnavailable
	}
	delete(fk.items, key)
	return nil
}

func (fk *FakeKeychain) Available() <-chan struct{} {
	fk.lock.RLock()
	defer fk.lock.RUnlock()
	return fk.available
}

// Seal makes every operation fail with keychain.ErrUnavailable.
func (fk *FakeKeychain) Seal() {
	fk.lock.Lock()
	defer fk.lock.Unlock()
	fk.sealed = true
}

// Unseal makes the store usable again and signals availability.
func (fk *FakeKeychain) Unseal() {
	fk.lock.Lock()
	defer fk.lock.Unlock()
	if !fk.sealed {
		return
	}
	fk.sealed = false
	close(fk.available)
	fk.available = make(chan struct{})
}

// FailSets makes Set return err until called again with nil.
func (fk *FakeKeychain) FailSets(err error) {
	fk.lock.Lock()
	defer fk.lock.Unlock()
	fk.failSets = err
}

// Put stores raw bytes directly, bypassing sealing; used to plant records.
func (fk *FakeKeychain) Put(key keychain.Key, data []byte) {
	fk.lock.Lock()
	defer fk.lock.Unlock()
	fk.items[key] = append([]byte(nil), data...)
}

// Has reports whether an item exists for key.
func (fk *FakeKeychain) Has(key keychain.Key) bool {
	fk.lock.RLock()
	defer fk.lock.RUnlock()
	_, ok := fk.items[key]
	return ok
}

// Len returns the number of stored items.
func (fk *FakeKeychain) Len() int {
	fk.lock.RLock()
	defer fk.lock.RUnlock()
	return len(fk.items)
}
