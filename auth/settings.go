package auth

import (
	"context"

	"github.com/jrsteele09/go-auth-client/persistence"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/tenants"
	"github.com/pkg/errors"
)

// TenantID returns the tenant new sessions must belong to, nil for none.
func (a *Auth) TenantID() *string {
	a.settingsLock.RLock()
	defer a.settingsLock.RUnlock()
	if a.tenantID == nil {
		return nil
	}
	tenantID := *a.tenantID
	return &tenantID
}

// SetTenantID scopes subsequent sign-ins to a tenant; empty clears it. The
// current user is not affected.
func (a *Auth) SetTenantID(tenantID string) {
	a.settingsLock.Lock()
	defer a.settingsLock.Unlock()
	a.tenantID = tenants.Normalize(tenantID)
}

func (a *Auth) LanguageCode() string {
	a.settingsLock.RLock()
	defer a.settingsLock.RUnlock()
	return a.languageCode
}

// SetLanguageCode localizes backend-sent emails and SMS.
func (a *Auth) SetLanguageCode(code string) {
	a.settingsLock.Lock()
	defer a.settingsLock.Unlock()
	a.languageCode = code
}

// UseEmulator routes subsequent backend requests to host:port.
func (a *Auth) UseEmulator(host string) {
	a.settingsLock.Lock()
	defer a.settingsLock.Unlock()
	a.emulatorHost = host
}

func (a *Auth) AutoRefresh() bool {
	a.settingsLock.RLock()
	defer a.settingsLock.RUnlock()
	return a.autoRefresh
}

// SetAutoRefresh turns proactive token refresh on or off.
func (a *Auth) SetAutoRefresh(enabled bool) {
	a.settingsLock.Lock()
	a.autoRefresh = enabled
	a.settingsLock.Unlock()

	if !enabled {
		a.scheduler.Cancel()
		return
	}
	a.serial.RunAsync(a.rescheduleLocked)
}

// EnteredForeground re-arms the refresh the scheduler skipped while the app
// was in the background.
func (a *Auth) EnteredForeground() {
	a.serial.RunAsync(a.rescheduleLocked)
}

func (a *Auth) rescheduleLocked() {
	s := a.current.Load()
	if s == nil || !a.AutoRefresh() {
		return
	}
	a.scheduler.ScheduleForExpiry(s.Fingerprint(), s.AccessTokenExpiry)
}

// Scope returns the active storage scope.
func (a *Auth) Scope(ctx context.Context) (persistence.Scope, error) {
	var scope persistence.Scope
	err := a.serial.RunSync(ctx, func() { scope = a.scope })
	return scope, err
}

// UseUserAccessGroup switches storage to a shared access group, or back to
// the app-private area for an empty group. The session stored in the target
// scope becomes the current user; leaving the default scope removes the
// session stored there. A target session from another tenant fails with
// tenants.ErrMismatch and leaves scope, records and current user unchanged.
// A corrupt target record is removed and read as signed out.
func (a *Auth) UseUserAccessGroup(ctx context.Context, group string) error {
	var result error
	err := a.serial.RunSync(ctx, func() {
		from := a.scope
		to := persistence.Shared(group, from.ShareAcrossDevices)
		if from == to {
			return
		}

		s, err := a.store.SwitchScope(ctx, from, to, func(s *sessions.Session) error {
			return tenants.Check(a.TenantID(), s.TenantID)
		})
		if errors.Is(err, tenants.ErrMismatch) {
			result = errors.Wrap(err, "[Auth.UseUserAccessGroup]")
			return
		}
		if err != nil {
			a.metrics.PersistenceError(persistenceErrorKind(err))
			result = errors.Wrap(err, "[Auth.UseUserAccessGroup]")
			return
		}
		a.scope = to
		a.logger.Info().Str("scope", to.String()).Msg("storage scope switched")
		result = a.installLocked(ctx, s, false, false)
	})
	if err != nil {
		return errors.Wrap(err, "[Auth.UseUserAccessGroup]")
	}
	return result
}

// SetShareAcrossDevices controls whether the session stored in a shared
// access group synchronizes across the user's devices. The current session
// is moved to the new location.
func (a *Auth) SetShareAcrossDevices(ctx context.Context, share bool) error {
	var result error
	err := a.serial.RunSync(ctx, func() {
		from := a.scope
		if from.ShareAcrossDevices == share {
			return
		}
		to := from
		to.ShareAcrossDevices = share
		if from.IsDefault() {
			a.scope = to
			return
		}

		if s := a.current.Load(); s != nil {
			if err := a.store.Save(ctx, s, to); err != nil {
				a.metrics.PersistenceError(persistenceErrorKind(err))
				result = errors.Wrap(err, "[Auth.SetShareAcrossDevices] saving session")
				return
			}
		}
		if err := a.store.Delete(ctx, from); err != nil {
			a.logger.Warn().Err(err).Msg("failed to remove session from previous scope")
		}
		a.scope = to
	})
	if err != nil {
		return errors.Wrap(err, "[Auth.SetShareAcrossDevices]")
	}
	return result
}

// StoredUser returns the session stored in a shared access group without
// installing it.
func (a *Auth) StoredUser(ctx context.Context, group string) (*sessions.Session, error) {
	var share bool
	if err := a.serial.RunSync(ctx, func() { share = a.scope.ShareAcrossDevices }); err != nil {
		return nil, errors.Wrap(err, "[Auth.StoredUser]")
	}
	s, err := a.store.Load(ctx, persistence.Shared(group, share))
	if err != nil {
		return nil, errors.Wrap(err, "[Auth.StoredUser]")
	}
	return s, nil
}
