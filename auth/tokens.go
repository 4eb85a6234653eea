package auth

import (
	"context"
	"time"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/pkg/errors"
	"golang.org/x/oauth2"
)

// IDTokenResult is an access token together with its decoded claims.
type IDTokenResult struct {
	Token          string
	Claims         map[string]any
	SignInProvider string
	TenantID       string
	IssuedAt       time.Time
	ExpirationTime time.Time
	AuthTime       time.Time
}

// GetIDToken returns a valid access token for the current user, refreshing
// it first when forced or when it expires within the refresh leeway.
// Concurrent callers share one backend refresh.
func (a *Auth) GetIDToken(ctx context.Context, force bool) (string, error) {
	s, err := a.freshSession(ctx, force)
	if err != nil {
		return "", err
	}
	return s.AccessToken, nil
}

// GetIDTokenResult is GetIDToken with the token's claims decoded.
func (a *Auth) GetIDTokenResult(ctx context.Context, force bool) (*IDTokenResult, error) {
	token, err := a.GetIDToken(ctx, force)
	if err != nil {
		return nil, err
	}
	claims, err := sessions.ParseClaims(token)
	if err != nil {
		return nil, errors.Wrap(err, "[Auth.GetIDTokenResult]")
	}
	return &IDTokenResult{
		Token:          token,
		Claims:         claims.Raw,
		SignInProvider: claims.SignInProvider,
		TenantID:       claims.TenantID,
		IssuedAt:       claims.IssuedAt,
		ExpirationTime: claims.ExpiresAt,
		AuthTime:       claims.AuthTime,
	}, nil
}

// TokenSource adapts the current user to oauth2, e.g. for oauth2.NewClient.
// Every Token call goes through GetIDToken.
func (a *Auth) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &userTokenSource{ctx: ctx, a: a}
}

type userTokenSource struct {
	ctx context.Context
	a   *Auth
}

func (ts *userTokenSource) Token() (*oauth2.Token, error) {
	s, err := ts.a.freshSession(ts.ctx, false)
	if err != nil {
		return nil, err
	}
	return s.OAuth2Token(), nil
}

// Reload fetches the current user's profile from the backend. A user the
// backend no longer accepts is signed out.
func (a *Auth) Reload(ctx context.Context) error {
	s, err := a.freshSession(ctx, false)
	if err != nil {
		return err
	}

	rctx, cancel := a.requestContext(ctx)
	defer cancel()
	info, err := a.backend.GetAccountInfo(rctx, &backend.AccountInfoRequest{Config: a.requestConfig(), AccessToken: s.AccessToken})
	if err != nil {
		if backend.IsTerminalRefreshError(err) {
			a.forceSignOut(s.UID, err)
		}
		return errors.Wrap(err, "[Auth.Reload] GetAccountInfo")
	}

	var installErr error
	if err := a.serial.RunSync(ctx, func() {
		live := a.current.Load()
		if live.GetUID() != s.UID {
			installErr = ErrUserChanged
			return
		}
		updated := live.Clone()
		info.Apply(updated)
		installErr = a.installLocked(ctx, updated, false, true)
	}); err != nil {
		return errors.Wrap(err, "[Auth.Reload]")
	}
	return installErr
}

// freshSession returns the current session with an access token that is
// not about to expire.
func (a *Auth) freshSession(ctx context.Context, force bool) (*sessions.Session, error) {
	s := a.current.Load()
	if s == nil {
		return nil, ErrNoCurrentUser
	}
	if !force && !s.ExpiresWithin(a.nowTime(), refresh.Leeway) {
		return s.Clone(), nil
	}
	refreshed, err := a.refreshSession(ctx, s.Fingerprint())
	if err != nil {
		return nil, err
	}
	if refreshed == nil {
		return nil, ErrNoCurrentUser
	}
	return refreshed.Clone(), nil
}

// refreshSession exchanges the refresh token of the session whose access
// token is fingerprint. Calls for the same fingerprint are coalesced. If the
// session has already moved on, the live session is returned untouched.
// The exchange runs detached from any one caller; a caller whose ctx ends
// returns ctx.Err() while the others still get the result.
func (a *Auth) refreshSession(ctx context.Context, fingerprint string) (*sessions.Session, error) {
	ch := a.refreshes.DoChan(fingerprint, func() (any, error) {
		return a.doRefresh(context.WithoutCancel(ctx), fingerprint)
	})
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), "[Auth.refreshSession]")
	case res := <-ch:
		if res.Shared {
			a.logger.Debug().Msg("joined in-flight token refresh")
		}
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*sessions.Session), nil
	}
}

func (a *Auth) doRefresh(ctx context.Context, fingerprint string) (*sessions.Session, error) {
	s := a.current.Load()
	if s == nil || s.Fingerprint() != fingerprint {
		return s, nil
	}

	rctx, cancel := a.requestContext(ctx)
	defer cancel()
	resp, err := a.backend.RefreshToken(rctx, &backend.RefreshRequest{Config: a.requestConfig(), RefreshToken: s.RefreshToken})
	if err != nil {
		if backend.IsTerminalRefreshError(err) {
			a.forceSignOut(s.UID, err)
		}
		return nil, errors.Wrap(err, "[Auth.refreshSession]")
	}

	refreshed := s.WithTokens(resp.AccessToken, resp.ExpiresAt, resp.RefreshToken).Normalize()

	var result *sessions.Session
	var installErr error
	if err := a.serial.RunSync(ctx, func() {
		live := a.current.Load()
		switch {
		case live.GetUID() != s.UID:
			installErr = ErrUserChanged
		case live.Fingerprint() != fingerprint:
			result = live
		default:
			// A token that cannot be saved is still valid; keep using it.
			installErr = a.installLocked(ctx, refreshed, true, true)
			result = refreshed
		}
	}); err != nil {
		return nil, errors.Wrap(err, "[Auth.refreshSession]")
	}
	if installErr != nil {
		return nil, errors.Wrap(installErr, "[Auth.refreshSession]")
	}
	a.logger.Debug().Str("uid", s.UID).Time("expires", refreshed.AccessTokenExpiry).Msg("access token refreshed")
	return result, nil
}

// Go runs op in a goroutine and hands its result to callback, for callers
// that prefer completion callbacks to blocking.
func Go[T any](ctx context.Context, op func(context.Context) (T, error), callback func(T, error)) {
	go func() {
		callback(op(ctx))
	}()
}
