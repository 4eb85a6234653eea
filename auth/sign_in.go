package auth

import (
	"context"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/pkg/errors"
)

// AuthResult is the outcome of a successful sign-in.
type AuthResult struct {
	User               *sessions.Session
	AdditionalUserInfo *AdditionalUserInfo
	Credential         credentials.Credential // Provider credential for federated sign-ins, nil otherwise
}

// AdditionalUserInfo describes the sign-in beyond the session itself.
type AdditionalUserInfo struct {
	ProviderID string
	IsNewUser  bool
	Username   string
	Profile    map[string]any
}

// SignIn exchanges any credential for a session and makes it the current
// user.
func (a *Auth) SignIn(ctx context.Context, cred credentials.Credential) (*AuthResult, error) {
	if cred == nil {
		return nil, errors.Wrap(credentials.ErrInvalidCredential, "[Auth.SignIn] nil credential")
	}
	if _, ok := cred.(*credentials.Anonymous); ok {
		return a.SignInAnonymously(ctx)
	}
	req := cred.Request()
	return a.instrument(ctx, req.Method, func(ctx context.Context) (*AuthResult, error) {
		return a.signInWithCredential(ctx, cred)
	})
}

func (a *Auth) SignInWithEmailPassword(ctx context.Context, email, password string) (*AuthResult, error) {
	return a.SignIn(ctx, credentials.NewEmailPassword(email, password))
}

func (a *Auth) SignInWithEmailLink(ctx context.Context, email, link string) (*AuthResult, error) {
	return a.SignIn(ctx, credentials.NewEmailLink(email, link))
}

// CreateUser creates an email/password account and signs in as it.
func (a *Auth) CreateUser(ctx context.Context, email, password string) (*AuthResult, error) {
	return a.SignIn(ctx, credentials.NewSignUp(email, password))
}

func (a *Auth) SignInWithCustomToken(ctx context.Context, token string) (*AuthResult, error) {
	return a.SignIn(ctx, &credentials.CustomToken{Token: token})
}

// ExchangeToken signs in with a third-party token issued by providerID.
func (a *Auth) ExchangeToken(ctx context.Context, providerID, token string) (*AuthResult, error) {
	return a.SignIn(ctx, &credentials.TokenExchange{Provider: providerID, Token: token})
}

// SignInWithGameCenter signs in as the local game player. It needs a
// GameCenterProvider.
func (a *Auth) SignInWithGameCenter(ctx context.Context) (*AuthResult, error) {
	if a.gameCenter == nil {
		return nil, errors.Wrap(ErrCapabilityUnavailable, "[Auth.SignInWithGameCenter] no game center provider")
	}
	proof, err := a.gameCenter.LocalPlayerProof(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "[Auth.SignInWithGameCenter] LocalPlayerProof")
	}
	if proof == nil {
		return nil, errors.Wrap(credentials.ErrInvalidCredential, "[Auth.SignInWithGameCenter] no proof")
	}
	return a.SignIn(ctx, proof)
}

// SignInAnonymously creates an anonymous user. If the current user is
// already anonymous it is returned unchanged.
func (a *Auth) SignInAnonymously(ctx context.Context) (*AuthResult, error) {
	return a.instrument(ctx, backend.MethodSignUpAnonymous, func(ctx context.Context) (*AuthResult, error) {
		if s := a.current.Load(); s != nil && s.Anonymous {
			return &AuthResult{
				User:               s.Clone(),
				AdditionalUserInfo: &AdditionalUserInfo{ProviderID: credentials.ProviderAnonymous},
			}, nil
		}
		return a.signInWithCredential(ctx, &credentials.Anonymous{})
	})
}

// instrument wraps every sign-in entry point with metrics and logging.
func (a *Auth) instrument(ctx context.Context, method backend.Method, fn func(context.Context) (*AuthResult, error)) (*AuthResult, error) {
	start := a.nowTime()
	result, err := fn(ctx)
	a.metrics.SignIn(string(method), err)

	logger := a.logger.With().Str("method", string(method)).Dur("took", a.nowTime().Sub(start)).Logger()
	if err != nil {
		logger.Info().Err(err).Msg("sign-in failed")
		return nil, err
	}
	logger.Info().Str("uid", result.User.UID).Bool("new_user", result.AdditionalUserInfo.IsNewUser).Msg("signed in")
	return result, nil
}

func (a *Auth) signInWithCredential(ctx context.Context, cred credentials.Credential) (*AuthResult, error) {
	if err := cred.Validate(); err != nil {
		return nil, errors.Wrap(err, "[Auth.SignIn] invalid credential")
	}

	req := cred.Request()
	req.Config = a.requestConfig()

	resp, err := a.sendSignIn(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "[Auth.SignIn] %s", req.Method)
	}

	var providerCred credentials.Credential
	if req.Method == backend.MethodVerifyAssertion {
		oauthCred := &credentials.OAuth{
			Provider:     resp.ProviderID,
			IDToken:      resp.OAuthIDToken,
			AccessToken:  resp.OAuthAccessToken,
			PendingToken: resp.PendingToken,
		}
		if oauthCred.Provider == "" {
			oauthCred.Provider = cred.ProviderID()
		}
		if resp.NeedConfirmation {
			return nil, &AccountExistsError{Email: resp.Email, Credential: oauthCred}
		}
		providerCred = oauthCred
	}

	s, err := a.completeSignIn(ctx, req.Config, resp, req.Method == backend.MethodSignUpAnonymous)
	if err != nil {
		return nil, err
	}

	providerID := resp.ProviderID
	if providerID == "" {
		providerID = cred.ProviderID()
	}
	return &AuthResult{
		User: s,
		AdditionalUserInfo: &AdditionalUserInfo{
			ProviderID: providerID,
			IsNewUser:  resp.IsNewUser,
			Username:   resp.Username,
			Profile:    resp.Profile,
		},
		Credential: providerCred,
	}, nil
}

// sendSignIn calls the backend, retrying once with a verification token when
// the backend reports it missing and a provider is configured.
func (a *Auth) sendSignIn(ctx context.Context, req *backend.SignInRequest) (*backend.SignInResponse, error) {
	rctx, cancel := a.requestContext(ctx)
	defer cancel()

	resp, err := a.backend.SignIn(rctx, req)
	if err == nil || a.verificationTokens == nil || !backend.IsMissingVerificationArtifact(err) {
		return resp, err
	}

	token, tokenErr := a.verificationTokens.VerificationToken(ctx, string(req.Method))
	if tokenErr != nil {
		return nil, errors.Wrap(tokenErr, "fetching verification token")
	}
	a.logger.Debug().Str("method", string(req.Method)).Msg("retrying sign-in with verification token")

	retry := *req
	retry.CaptchaResponse = token
	return a.backend.SignIn(rctx, &retry)
}

// completeSignIn turns a sign-in response into the current user.
func (a *Auth) completeSignIn(ctx context.Context, cfg backend.RequestConfig, resp *backend.SignInResponse, anonymous bool) (*sessions.Session, error) {
	s := &sessions.Session{
		UID:               resp.LocalID,
		AccessToken:       resp.IDToken,
		AccessTokenExpiry: resp.Expiry(a.nowTime()).UTC(),
		RefreshToken:      resp.RefreshToken,
		TenantID:          cfg.TenantID,
		Anonymous:         anonymous,
		APIKey:            a.app.APIKey,
	}

	rctx, cancel := a.requestContext(ctx)
	defer cancel()
	info, err := a.backend.GetAccountInfo(rctx, &backend.AccountInfoRequest{Config: cfg, AccessToken: s.AccessToken})
	if err != nil {
		return nil, errors.Wrap(err, "[Auth.completeSignIn] GetAccountInfo")
	}
	info.Apply(s)
	s = s.Normalize()

	var installErr error
	if err := a.serial.RunSync(ctx, func() {
		installErr = a.installLocked(ctx, s, false, true)
	}); err != nil {
		return nil, errors.Wrap(err, "[Auth.completeSignIn]")
	}
	if installErr != nil {
		return nil, installErr
	}
	return s.Clone(), nil
}
