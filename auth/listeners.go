package auth

import (
	"context"

	"github.com/jrsteele09/go-auth-client/listeners"
)

// AddAuthStateListener registers cb for sign-in and sign-out. cb is called
// right away with the current state, then whenever the user ID changes.
func (a *Auth) AddAuthStateListener(cb listeners.Callback) listeners.Handle {
	return a.addListener(a.listeners.AddAuthStateListener, cb)
}

// AddIDTokenListener registers cb for identity and token changes. cb is
// called right away with the current state.
func (a *Auth) AddIDTokenListener(cb listeners.Callback) listeners.Handle {
	return a.addListener(a.listeners.AddIDTokenListener, cb)
}

func (a *Auth) RemoveAuthStateListener(h listeners.Handle) {
	a.listeners.Remove(h)
}

func (a *Auth) RemoveIDTokenListener(h listeners.Handle) {
	a.listeners.Remove(h)
}

// addListener registers on the serial queue so the initial delivery is
// ordered with session changes. After Close nothing is registered and the
// zero Handle is returned.
func (a *Auth) addListener(add func(listeners.Callback) listeners.Handle, cb listeners.Callback) listeners.Handle {
	var h listeners.Handle
	err := a.serial.RunSync(context.Background(), func() {
		h = add(cb)
		a.listeners.Welcome(h, a.eventFor(a.current.Load()))
	})
	if err != nil {
		a.logger.Warn().Err(err).Msg("listener not registered")
		return listeners.Handle{}
	}
	return h
}
