// Package backend defines the identity backend the auth client talks to.
// The wire protocol is left to implementations; this package only fixes the
// request and response shapes and the error codes the client reacts to.
package backend

import (
	"time"

	"github.com/jrsteele09/go-auth-client/sessions"
)

// Method names a sign-in RPC.
type Method string

const (
	MethodVerifyPassword       Method = "verifyPassword"
	MethodSignUp               Method = "signUp"
	MethodEmailLinkSignIn      Method = "emailLinkSignin"
	MethodVerifyCustomToken    Method = "verifyCustomToken"
	MethodVerifyAssertion      Method = "verifyAssertion"
	MethodVerifyPhoneNumber    Method = "verifyPhoneNumber"
	MethodSignInWithGameCenter Method = "signInWithGameCenter"
	MethodExchangeToken        Method = "exchangeToken"
	MethodSignUpAnonymous      Method = "signUpAnonymous"
)

// RequestConfig is sent with every request.
type RequestConfig struct {
	APIKey       string
	AppID        string
	TenantID     *string // nil targets the project-level user pool
	LanguageCode string  // Localizes backend-sent emails and SMS, empty for the default
	EmulatorHost string  // host:port of a local emulator, empty for production
}

// SignInRequest carries the fields of every sign-in method; only the ones
// relevant to Method are set.
type SignInRequest struct {
	Method Method
	Config RequestConfig

	// Email and password (verifyPassword, signUp) or email link (emailLinkSignin).
	Email    string
	Password string
	OOBCode  string

	// CustomToken is a token minted by the developer's own server.
	CustomToken string

	// Assertion is the federated provider credential (verifyAssertion).
	Assertion *Assertion

	// Phone is the SMS verification result (verifyPhoneNumber).
	Phone *PhoneVerification

	// GameCenter is the platform game identity proof (signInWithGameCenter).
	GameCenter *GameCenterProof

	// Exchange is an opaque third-party token (exchangeToken).
	Exchange *TokenExchange

	// CaptchaResponse is the verification artifact some projects require
	// before password sign-in or sign-up.
	CaptchaResponse string
}

// Assertion is a federated identity provider credential.
type Assertion struct {
	ProviderID   string
	IDToken      string
	AccessToken  string
	RawNonce     string
	PendingToken string
	Secret       string // OAuth1 token secret, for providers that need one
}

type PhoneVerification struct {
	VerificationID   string
	VerificationCode string
	TemporaryProof   string
	PhoneNumber      string
}

type GameCenterProof struct {
	PlayerID     string
	TeamPlayerID string
	GamePlayerID string
	PublicKeyURL string
	Signature    []byte
	Salt         []byte
	Timestamp    int64
	DisplayName  string
}

type TokenExchange struct {
	ProviderID string // Workforce / workload identity provider configuration
	Token      string
}

// SignInResponse is what a successful sign-in returns.
type SignInResponse struct {
	// IDToken is the access token the client attaches to backend requests.
	// Lifespan: short-lived, see ExpiresIn / ApproximateExpirationDate
	IDToken string

	// RefreshToken mints new ID tokens without signing in again.
	RefreshToken string

	// ExpiresIn is the lifetime of IDToken in seconds. Ignored when
	// ApproximateExpirationDate is set.
	ExpiresIn int64

	// ApproximateExpirationDate is an absolute expiry some methods return
	// instead of ExpiresIn.
	ApproximateExpirationDate time.Time

	// LocalID is the backend user ID.
	LocalID string

	IsNewUser  bool
	ProviderID string
	Profile    map[string]any
	Username   string
	Email      string

	// NeedConfirmation is set by verifyAssertion when an account with the same
	// email exists under a different credential. PendingToken lets the caller
	// link the credential after signing in with the existing one.
	NeedConfirmation bool
	PendingToken     string

	// OAuthAccessToken and OAuthIDToken are the provider tokens returned by
	// verifyAssertion, surfaced to the caller as the sign-in credential.
	OAuthAccessToken string
	OAuthIDToken     string
}

// Expiry resolves the absolute ID token expiry.
func (r *SignInResponse) Expiry(now time.Time) time.Time {
	if !r.ApproximateExpirationDate.IsZero() {
		return r.ApproximateExpirationDate
	}
	return now.Add(time.Duration(r.ExpiresIn) * time.Second)
}

type AccountInfoRequest struct {
	Config      RequestConfig
	AccessToken string
}

// AccountInfo is the profile of the account an access token belongs to.
type AccountInfo struct {
	LocalID       string
	Email         string
	EmailVerified bool
	DisplayName   string
	PhotoURL      string
	PhoneNumber   string
	Disabled      bool
	Providers     []sessions.ProviderInfo
	CreatedAt     time.Time
	LastLoginAt   time.Time
}

// Apply copies the profile onto a session.
func (a *AccountInfo) Apply(s *sessions.Session) {
	s.Email = a.Email
	s.EmailVerified = a.EmailVerified
	s.DisplayName = a.DisplayName
	s.PhotoURL = a.PhotoURL
	s.PhoneNumber = a.PhoneNumber
	s.ProviderData = append([]sessions.ProviderInfo(nil), a.Providers...)
	s.Metadata = sessions.Metadata{CreatedAt: a.CreatedAt, LastSignInAt: a.LastLoginAt}
}

type RefreshRequest struct {
	Config       RequestConfig
	RefreshToken string
}

type RefreshResponse struct {
	AccessToken  string
	RefreshToken string // Rotated refresh token, empty when unchanged
	ExpiresAt    time.Time
	UserID       string
}
