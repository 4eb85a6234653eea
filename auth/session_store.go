package auth

import (
	"context"

	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/jrsteele09/go-auth-client/listeners"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/tenants"
	"github.com/pkg/errors"
)

// CurrentUser returns a copy of the signed-in session, nil when signed out.
func (a *Auth) CurrentUser() *sessions.Session {
	return a.current.Load().Clone()
}

// UpdateCurrentUser makes s the current user and persists it. s must have
// been created for this app.
func (a *Auth) UpdateCurrentUser(ctx context.Context, s *sessions.Session) error {
	if s == nil {
		return ErrNilUser
	}
	if s.APIKey != a.app.APIKey {
		return ErrInvalidUserToken
	}
	s = s.Normalize()

	var installErr error
	if err := a.serial.RunSync(ctx, func() {
		installErr = a.installLocked(ctx, s, false, true)
	}); err != nil {
		return errors.Wrap(err, "[Auth.UpdateCurrentUser]")
	}
	return installErr
}

// SignOut clears the current user and removes the stored session. If the
// stored session cannot be removed the user stays signed in.
func (a *Auth) SignOut(ctx context.Context) error {
	var installErr error
	if err := a.serial.RunSync(ctx, func() {
		installErr = a.installLocked(ctx, nil, false, true)
	}); err != nil {
		return errors.Wrap(err, "[Auth.SignOut]")
	}
	return installErr
}

// installLocked replaces the current session. It must run on the serial
// queue. With persist the session is saved under the active scope first; a
// save failure aborts the install unless force is set.
func (a *Auth) installLocked(ctx context.Context, s *sessions.Session, force, persist bool) error {
	s = s.Normalize()
	if s != nil {
		if err := tenants.Check(a.TenantID(), s.TenantID); err != nil {
			return errors.Wrap(err, "[Auth.install]")
		}
	}

	if persist {
		if err := a.store.Save(ctx, s, a.scope); err != nil {
			a.metrics.PersistenceError(persistenceErrorKind(err))
			if !force {
				return errors.Wrap(err, "[Auth.install] saving session")
			}
			a.logger.Warn().Err(err).Msg("session installed without being persisted")
		}
	}

	a.current.Store(s)
	a.notifyIfChangedLocked()
	return nil
}

// notifyIfChangedLocked tells listeners about a new identity or token and
// re-arms the refresh scheduler.
func (a *Auth) notifyIfChangedLocked() {
	s := a.current.Load()
	uid, token := s.GetUID(), s.Fingerprint()
	if uid == a.lastNotifiedUID && token == a.lastNotifiedToken {
		return
	}
	a.lastNotifiedUID, a.lastNotifiedToken = uid, token

	a.listeners.Notify(a.eventFor(s))
	a.metrics.Notified()

	if s == nil {
		a.scheduler.Cancel()
		return
	}
	if a.AutoRefresh() {
		a.scheduler.ScheduleForExpiry(token, s.AccessTokenExpiry)
	}
}

func (a *Auth) eventFor(s *sessions.Session) listeners.Event {
	return listeners.Event{
		AppID:       a.app.Name,
		UID:         s.GetUID(),
		AccessToken: s.Fingerprint(),
		Session:     s,
	}
}

// loadStoredSessionLocked restores the session saved under the active
// scope. A corrupt record is removed. When the keychain is unavailable and
// can signal availability, one retry is armed if waitForKeychain is set.
func (a *Auth) loadStoredSessionLocked(ctx context.Context, waitForKeychain bool) {
	s, err := a.store.Load(ctx, a.scope)
	switch {
	case errors.Is(err, sessions.ErrCorrupt):
		a.metrics.PersistenceError(persistenceErrorKind(err))
		a.logger.Warn().Err(err).Msg("stored session is corrupt, discarding it")
		if err := a.store.Delete(ctx, a.scope); err != nil {
			a.logger.Warn().Err(err).Msg("failed to delete corrupt session")
		}
		return
	case errors.Is(err, keychain.ErrUnavailable):
		a.metrics.PersistenceError(persistenceErrorKind(err))
		a.logger.Warn().Err(err).Msg("keychain unavailable, stored session not loaded")
		if notifier, ok := a.keychain.(keychain.AvailabilityNotifier); ok && waitForKeychain {
			go a.awaitKeychain(notifier.Available())
		}
		return
	case err != nil:
		a.metrics.PersistenceError(persistenceErrorKind(err))
		a.logger.Error().Err(err).Msg("failed to load stored session")
		return
	case s == nil:
		return
	}

	if err := a.installLocked(ctx, s, false, false); err != nil {
		a.logger.Warn().Err(err).Str("uid", s.UID).Msg("stored session rejected")
	}
}

func (a *Auth) awaitKeychain(available <-chan struct{}) {
	select {
	case <-available:
	case <-a.closed:
		return
	}
	a.serial.RunAsync(func() {
		if a.current.Load() != nil {
			return
		}
		ctx, cancel := a.requestContext(context.Background())
		defer cancel()
		a.logger.Info().Msg("keychain available, loading stored session")
		a.loadStoredSessionLocked(ctx, false)
	})
}

// forceSignOut drops the session identified by uid after the backend
// declared it unusable.
func (a *Auth) forceSignOut(uid string, cause error) {
	a.logger.Warn().Err(cause).Str("uid", uid).Msg("signing out invalidated user")
	_ = a.serial.RunSync(context.Background(), func() {
		if a.current.Load().GetUID() != uid {
			return
		}
		ctx, cancel := a.requestContext(context.Background())
		defer cancel()
		_ = a.installLocked(ctx, nil, true, true)
	})
}

func persistenceErrorKind(err error) string {
	switch {
	case errors.Is(err, keychain.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, sessions.ErrCorrupt):
		return "corrupt"
	default:
		return "other"
	}
}
