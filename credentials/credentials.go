// Package credentials defines the sign-in credential kinds the auth client
// accepts, with the local checks each one must pass before it is sent to the
// backend.
package credentials

import (
	"fmt"
	"net/url"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/nyaruka/phonenumbers"
)

// Provider IDs of the built-in credential kinds.
const (
	ProviderPassword   = "password"
	ProviderEmailLink  = "emailLink"
	ProviderCustom     = "custom"
	ProviderAnonymous  = "anonymous"
	ProviderPhone      = "phone"
	ProviderGameCenter = "gc.apple.com"
)

// Credential is anything that can be exchanged for a session.
type Credential interface {
	// ProviderID names the identity provider behind the credential.
	ProviderID() string

	// Validate runs the local checks.
	Validate() error

	// Request builds the backend sign-in request.
	Request() *backend.SignInRequest
}

var (
	_ Credential = (*EmailPassword)(nil)
	_ Credential = (*EmailLink)(nil)
	_ Credential = (*CustomToken)(nil)
	_ Credential = (*Anonymous)(nil)
	_ Credential = (*OAuth)(nil)
	_ Credential = (*Phone)(nil)
	_ Credential = (*GameCenter)(nil)
	_ Credential = (*TokenExchange)(nil)
)

// EmailPassword signs in, or with SignUp set creates, an email/password account.
type EmailPassword struct {
	Email    string
	Password string
	SignUp   bool
}

func NewEmailPassword(email, password string) *EmailPassword {
	return &EmailPassword{Email: email, Password: password}
}

func NewSignUp(email, password string) *EmailPassword {
	return &EmailPassword{Email: email, Password: password, SignUp: true}
}

func (c *EmailPassword) ProviderID() string { return ProviderPassword }

func (c *EmailPassword) Validate() error {
	if err := ValidateEmail(c.Email); err != nil {
		return err
	}
	if c.Password == "" {
		if c.SignUp {
			return ErrWeakPassword
		}
		return ErrWrongPassword
	}
	return nil
}

func (c *EmailPassword) Request() *backend.SignInRequest {
	method := backend.MethodVerifyPassword
	if c.SignUp {
		method = backend.MethodSignUp
	}
	return &backend.SignInRequest{Method: method, Email: c.Email, Password: c.Password}
}

// EmailLink signs in with a link delivered by email.
type EmailLink struct {
	Email string
	Link  string
}

func NewEmailLink(email, link string) *EmailLink {
	return &EmailLink{Email: email, Link: link}
}

func (c *EmailLink) ProviderID() string { return ProviderEmailLink }

func (c *EmailLink) Validate() error {
	if err := ValidateEmail(c.Email); err != nil {
		return err
	}
	if !IsSignInLink(c.Link) {
		return ErrInvalidEmailLink
	}
	return nil
}

func (c *EmailLink) Request() *backend.SignInRequest {
	return &backend.SignInRequest{
		Method:  backend.MethodEmailLinkSignIn,
		Email:   c.Email,
		OOBCode: linkParam(c.Link, "oobCode"),
	}
}

// CustomToken signs in with a token minted by the developer's server.
type CustomToken struct {
	Token string
}

func (c *CustomToken) ProviderID() string { return ProviderCustom }

func (c *CustomToken) Validate() error {
	if c.Token == "" {
		return ErrMissingCustomToken
	}
	return nil
}

func (c *CustomToken) Request() *backend.SignInRequest {
	return &backend.SignInRequest{Method: backend.MethodVerifyCustomToken, CustomToken: c.Token}
}

// Anonymous creates a temporary account.
type Anonymous struct{}

func (c *Anonymous) ProviderID() string { return ProviderAnonymous }

func (c *Anonymous) Validate() error { return nil }

func (c *Anonymous) Request() *backend.SignInRequest {
	return &backend.SignInRequest{Method: backend.MethodSignUpAnonymous}
}

// OAuth is a federated identity provider assertion.
type OAuth struct {
	Provider     string // e.g. "google.com"
	IDToken      string
	AccessToken  string
	RawNonce     string
	PendingToken string // From an earlier account-exists response
	Secret       string
}

func (c *OAuth) ProviderID() string { return c.Provider }

func (c *OAuth) Validate() error {
	if c.Provider == "" {
		return ErrMissingProviderID
	}
	if c.IDToken == "" && c.AccessToken == "" && c.PendingToken == "" {
		return fmt.Errorf("%w: %s assertion carries no token", ErrInvalidCredential, c.Provider)
	}
	return nil
}

func (c *OAuth) Request() *backend.SignInRequest {
	return &backend.SignInRequest{
		Method: backend.MethodVerifyAssertion,
		Assertion: &backend.Assertion{
			ProviderID:   c.Provider,
			IDToken:      c.IDToken,
			AccessToken:  c.AccessToken,
			RawNonce:     c.RawNonce,
			PendingToken: c.PendingToken,
			Secret:       c.Secret,
		},
	}
}

// Phone signs in with an SMS verification result, or with a temporary proof
// from an earlier verification.
type Phone struct {
	VerificationID   string
	VerificationCode string
	TemporaryProof   string
	PhoneNumber      string
}

func (c *Phone) ProviderID() string { return ProviderPhone }

func (c *Phone) Validate() error {
	if c.TemporaryProof != "" {
		if _, err := NormalizePhoneNumber(c.PhoneNumber, ""); err != nil {
			return err
		}
		return nil
	}
	if c.VerificationID == "" {
		return ErrMissingVerificationID
	}
	if c.VerificationCode == "" {
		return ErrMissingVerificationCode
	}
	return nil
}

func (c *Phone) Request() *backend.SignInRequest {
	number := c.PhoneNumber
	if normalized, err := NormalizePhoneNumber(number, ""); err == nil {
		number = normalized
	}
	return &backend.SignInRequest{
		Method: backend.MethodVerifyPhoneNumber,
		Phone: &backend.PhoneVerification{
			VerificationID:   c.VerificationID,
			VerificationCode: c.VerificationCode,
			TemporaryProof:   c.TemporaryProof,
			PhoneNumber:      number,
		},
	}
}

// GameCenter is a platform game identity proof.
type GameCenter struct {
	PlayerID     string
	TeamPlayerID string
	GamePlayerID string
	PublicKeyURL string
	Signature    []byte
	Salt         []byte
	Timestamp    int64
	DisplayName  string
}

func (c *GameCenter) ProviderID() string { return ProviderGameCenter }

func (c *GameCenter) Validate() error {
	if c.PlayerID == "" || c.PublicKeyURL == "" || len(c.Signature) == 0 {
		return fmt.Errorf("%w: incomplete game center proof", ErrInvalidCredential)
	}
	return nil
}

func (c *GameCenter) Request() *backend.SignInRequest {
	return &backend.SignInRequest{
		Method: backend.MethodSignInWithGameCenter,
		GameCenter: &backend.GameCenterProof{
			PlayerID:     c.PlayerID,
			TeamPlayerID: c.TeamPlayerID,
			GamePlayerID: c.GamePlayerID,
			PublicKeyURL: c.PublicKeyURL,
			Signature:    c.Signature,
			Salt:         c.Salt,
			Timestamp:    c.Timestamp,
			DisplayName:  c.DisplayName,
		},
	}
}

// TokenExchange exchanges an opaque third-party token.
type TokenExchange struct {
	Provider string
	Token    string
}

func (c *TokenExchange) ProviderID() string { return c.Provider }

func (c *TokenExchange) Validate() error {
	if c.Token == "" {
		return fmt.Errorf("%w: empty exchange token", ErrInvalidCredential)
	}
	return nil
}

func (c *TokenExchange) Request() *backend.SignInRequest {
	return &backend.SignInRequest{
		Method:   backend.MethodExchangeToken,
		Exchange: &backend.TokenExchange{ProviderID: c.Provider, Token: c.Token},
	}
}

// ValidateEmail checks presence and format without any network lookups.
func ValidateEmail(email string) error {
	if email == "" {
		return ErrMissingEmail
	}
	if err := validation.Validate(email, is.Email); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}
	return nil
}

// NormalizePhoneNumber parses number and returns it in E.164 form. Numbers
// without a leading + are parsed for defaultRegion.
func NormalizePhoneNumber(number, defaultRegion string) (string, error) {
	if number == "" {
		return "", ErrInvalidPhoneNumber
	}
	parsed, err := phonenumbers.Parse(number, defaultRegion)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhoneNumber, err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", ErrInvalidPhoneNumber
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

// IsSignInLink reports whether link is an email sign-in link: its query
// carries an oobCode and mode=signIn.
func IsSignInLink(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	q := u.Query()
	return q.Get("oobCode") != "" && q.Get("mode") == "signIn"
}

func linkParam(link, name string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Query().Get(name)
}
