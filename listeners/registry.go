// Package listeners keeps the observers of the current session and delivers
// change events to them, in order, on a dedicated goroutine.
package listeners

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/internal/serial"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Kind separates the two listener flavours.
type Kind int

const (
	// IDToken listeners hear about every identity or token change.
	IDToken Kind = iota
	// AuthState listeners only hear about identity changes.
	AuthState
)

func (k Kind) String() string {
	if k == AuthState {
		return "auth-state"
	}
	return "id-token"
}

// Handle identifies a registration.
type Handle uuid.UUID

func (h Handle) String() string {
	return uuid.UUID(h).String()
}

// Event describes the session at the moment of a change. UID and AccessToken
// are empty while signed out.
type Event struct {
	AppID       string
	UID         string
	AccessToken string
	Session     *sessions.Session
}

// Callback receives events. It runs on the delivery goroutine and may call
// back into the auth client, but must not call Registry.Flush or Close.
type Callback func(Event)

type listener struct {
	handle Handle
	kind   Kind
	cb     Callback

	// Owned by the delivery goroutine.
	delivered bool
	lastUID   string
}

// Registry holds listener registrations. Registration and removal use the
// registry's own lock; delivery happens asynchronously in FIFO order.
type Registry struct {
	mu        sync.Mutex
	listeners map[Handle]*listener
	order     []Handle

	deliveries *serial.Queue
	logger     zerolog.Logger
}

type Option func(*Registry)

// WithLogger sets the logger used to report panicking callbacks.
func WithLogger(logger zerolog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

func New(opts ...Option) *Registry {
	r := &Registry{
		listeners:  make(map[Handle]*listener),
		deliveries: serial.New(),
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With().Str("component", "listeners").Logger()
	return r
}

func (r *Registry) AddIDTokenListener(cb Callback) Handle {
	return r.add(IDToken, cb)
}

func (r *Registry) AddAuthStateListener(cb Callback) Handle {
	return r.add(AuthState, cb)
}

func (r *Registry) add(kind Kind, cb Callback) Handle {
	h := Handle(uuid.New())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners[h] = &listener{handle: h, kind: kind, cb: cb}
	r.order = append(r.order, h)
	return h
}

// Remove unregisters a listener. Removing an unknown handle is a no-op.
// Deliveries still queued for the listener are dropped.
func (r *Registry) Remove(h Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.listeners[h]; !ok {
		return
	}
	delete(r.listeners, h)
	for i, o := range r.order {
		if o == h {
			r.order = append(r.order[:i:i], r.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of registered listeners.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners)
}

// Notify queues delivery of event to the listeners registered at the time of
// the call.
func (r *Registry) Notify(event Event) {
	targets := r.snapshot()
	r.deliveries.RunAsync(func() {
		for _, l := range targets {
			if !r.registered(l) {
				continue
			}
			r.deliver(l, event)
		}
	})
}

// Welcome queues the initial delivery of event to one listener.
func (r *Registry) Welcome(h Handle, event Event) {
	r.deliveries.RunAsync(func() {
		r.mu.Lock()
		l, ok := r.listeners[h]
		r.mu.Unlock()
		if ok {
			r.deliver(l, event)
		}
	})
}

// Flush waits until every delivery queued before the call has run.
func (r *Registry) Flush(ctx context.Context) error {
	return r.deliveries.RunSync(ctx, func() {})
}

// Close delivers what is queued and stops the delivery goroutine.
func (r *Registry) Close() {
	r.deliveries.Close()
}

func (r *Registry) registered(l *listener) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listeners[l.handle] == l
}

func (r *Registry) snapshot() []*listener {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*listener, 0, len(r.order))
	for _, h := range r.order {
		out = append(out, r.listeners[h])
	}
	return out
}

func (r *Registry) deliver(l *listener, event Event) {
	if l.kind == AuthState {
		if l.delivered && l.lastUID == event.UID {
			return
		}
		l.delivered = true
		l.lastUID = event.UID
	}

	event.Session = event.Session.Clone()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error().Interface("panic", p).Str("kind", l.kind.String()).Msg("listener panicked")
		}
	}()
	l.cb(event)
}
