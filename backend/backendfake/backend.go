// Package backendfake is an in-process identity backend. It keeps accounts,
// mints signed ID tokens and opaque refresh tokens, and can be told to fail,
// which makes it suitable for tests and local demos.
package backendfake

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/sessions"
)

// Operation names used for failure injection and call counting, in addition
// to the sign-in methods.
const (
	OpRefresh     = "refresh"
	OpAccountInfo = "accountInfo"
)

const (
	defaultTokenLifetime = time.Hour
	providerPassword     = "password"
	providerEmailLink    = "emailLink"
	providerCustom       = "custom"
	providerAnonymous    = "anonymous"
	providerPhone        = "phone"
	providerGameCenter   = "gc.apple.com"
)

var _ backend.Client = (*Backend)(nil)

type assertionIdentity struct {
	ProviderID  string
	ProviderUID string
	Email       string
}

type phoneVerification struct {
	PhoneNumber string
	Code        string
}

type Backend struct {
	projectID       string
	issuer          string
	signingKey      []byte
	tokenLifetime   time.Duration
	refreshLifetime time.Duration
	nowTime         func() time.Time

	accounts      map[string]*Account
	refreshTokens map[string]*storedRefreshToken
	refreshByUser map[string]string

	emailLinks    map[string]string // oob code to email
	customTokens  map[string]string // custom token to uid
	exchanges     map[string]string // exchange token to uid
	assertions    map[string]assertionIdentity
	phoneSessions map[string]phoneVerification
	phoneProofs   map[string]string // temporary proof to phone number
	recaptcha     string

	failures    map[string][]error
	calls       map[string]int
	refreshGate chan struct{}
	gated       int

	lock sync.Mutex
}

type Option func(*Backend)

func WithNowTime(nowTime func() time.Time) Option {
	return func(b *Backend) {
		b.nowTime = nowTime
	}
}

// WithTokenLifetime sets how long minted ID tokens are valid.
func WithTokenLifetime(d time.Duration) Option {
	return func(b *Backend) {
		b.tokenLifetime = d
	}
}

// WithRefreshTokenLifetime makes refresh tokens expire; zero means never.
func WithRefreshTokenLifetime(d time.Duration) Option {
	return func(b *Backend) {
		b.refreshLifetime = d
	}
}

func WithProjectID(projectID string) Option {
	return func(b *Backend) {
		b.projectID = projectID
	}
}

func New(opts ...Option) *Backend {
	b := &Backend{
		projectID:     "fake-project",
		tokenLifetime: defaultTokenLifetime,
		nowTime:       time.Now,
		accounts:      make(map[string]*Account),
		refreshTokens: make(map[string]*storedRefreshToken),
		refreshByUser: make(map[string]string),
		emailLinks:    make(map[string]string),
		customTokens:  make(map[string]string),
		exchanges:     make(map[string]string),
		assertions:    make(map[string]assertionIdentity),
		phoneSessions: make(map[string]phoneVerification),
		phoneProofs:   make(map[string]string),
		failures:      make(map[string][]error),
		calls:         make(map[string]int),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.issuer = "https://securetoken.google.com/" + b.projectID
	b.signingKey = make([]byte, 32)
	_, _ = rand.Read(b.signingKey)
	return b
}

// CreateAccount adds an email/password account and returns its ID.
func (b *Backend) CreateAccount(tenantID, email, password string) (string, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return "", err
	}
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.findByEmail(tenantID, email) != nil {
		return "", backend.NewError(backend.CodeEmailExists, email)
	}
	acct := b.newAccount(tenantID)
	acct.Email = email
	acct.PasswordHash = hash
	acct.Providers = []sessions.ProviderInfo{{ProviderID: providerPassword, UID: email, Email: email}}
	return acct.ID, nil
}

// Account returns a copy of the account with the given ID.
func (b *Backend) Account(uid string) (Account, bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	acct, ok := b.accounts[uid]
	if !ok {
		return Account{}, false
	}
	return *acct, true
}

// UpdateProfile changes an account's display name.
func (b *Backend) UpdateProfile(uid, displayName string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if acct, ok := b.accounts[uid]; ok {
		acct.DisplayName = displayName
	}
}

func (b *Backend) SetDisabled(uid string, disabled bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if acct, ok := b.accounts[uid]; ok {
		acct.Disabled = disabled
	}
}

// DeleteAccount removes the account and its refresh token.
func (b *Backend) DeleteAccount(uid string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	delete(b.accounts, uid)
	b.revokeLocked(uid)
}

// RevokeRefreshTokens invalidates the account's refresh token.
func (b *Backend) RevokeRefreshTokens(uid string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.revokeLocked(uid)
}

// IssueEmailLink returns the out-of-band code of a sign-in link for email.
func (b *Backend) IssueEmailLink(email string) string {
	b.lock.Lock()
	defer b.lock.Unlock()
	code := uuid.NewString()
	b.emailLinks[code] = email
	return code
}

// RegisterCustomToken makes token sign in as uid.
func (b *Backend) RegisterCustomToken(token, uid string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.customTokens[token] = uid
}

// RegisterExchangeToken makes a third-party token sign in as uid.
func (b *Backend) RegisterExchangeToken(token, uid string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.exchanges[token] = uid
}

// RegisterAssertion makes a provider token assert the given provider identity.
func (b *Backend) RegisterAssertion(providerID, token, providerUID, email string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.assertions[providerID+"|"+token] = assertionIdentity{
		ProviderID:  providerID,
		ProviderUID: providerUID,
		Email:       email,
	}
}

// SendVerificationCode starts a phone verification and returns its ID and
// the code the user would receive.
func (b *Backend) SendVerificationCode(phoneNumber string) (verificationID, code string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	verificationID = uuid.NewString()
	code = fmt.Sprintf("%06d", len(b.phoneSessions)+123456)
	b.phoneSessions[verificationID] = phoneVerification{PhoneNumber: phoneNumber, Code: code}
	return verificationID, code
}

// IssueTemporaryProof returns a proof that phoneNumber was verified earlier.
func (b *Backend) IssueTemporaryProof(phoneNumber string) string {
	b.lock.Lock()
	defer b.lock.Unlock()
	proof := uuid.NewString()
	b.phoneProofs[proof] = phoneNumber
	return proof
}

// RequireRecaptcha makes password sign-in and sign-up fail with the missing
// reCAPTCHA internal error unless the request carries token.
func (b *Backend) RequireRecaptcha(token string) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.recaptcha = token
}

// FailNext queues errors returned by the next calls of op, which is a
// backend.Method or one of the Op constants.
func (b *Backend) FailNext(op string, errs ...error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.failures[op] = append(b.failures[op], errs...)
}

// Calls returns how often op was invoked.
func (b *Backend) Calls(op string) int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.calls[op]
}

// GateRefresh makes RefreshToken block until gate is closed or receives.
// A nil gate removes the block.
func (b *Backend) GateRefresh(gate chan struct{}) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.refreshGate = gate
}

// Gated returns how many RefreshToken calls have reached the gate.
func (b *Backend) Gated() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.gated
}

func (b *Backend) SignIn(ctx context.Context, req *backend.SignInRequest) (*backend.SignInResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.lock.Lock()
	defer b.lock.Unlock()

	if err := b.enter(string(req.Method)); err != nil {
		return nil, err
	}
	tenantID := tenantOf(req.Config)

	switch req.Method {
	case backend.MethodVerifyPassword:
		return b.verifyPassword(tenantID, req)
	case backend.MethodSignUp:
		return b.signUp(tenantID, req)
	case backend.MethodEmailLinkSignIn:
		return b.emailLinkSignIn(tenantID, req)
	case backend.MethodVerifyCustomToken:
		uid, ok := b.customTokens[req.CustomToken]
		if !ok {
			return nil, backend.NewError(backend.CodeInvalidCustomToken, "")
		}
		return b.signInAs(tenantID, uid, providerCustom)
	case backend.MethodExchangeToken:
		if req.Exchange == nil {
			return nil, backend.NewError(backend.CodeInvalidIDPResponse, "missing token")
		}
		uid, ok := b.exchanges[req.Exchange.Token]
		if !ok {
			return nil, backend.NewError(backend.CodeInvalidIDPResponse, "")
		}
		return b.signInAs(tenantID, uid, req.Exchange.ProviderID)
	case backend.MethodVerifyAssertion:
		return b.verifyAssertion(tenantID, req)
	case backend.MethodVerifyPhoneNumber:
		return b.verifyPhoneNumber(tenantID, req)
	case backend.MethodSignInWithGameCenter:
		if req.GameCenter == nil || req.GameCenter.PlayerID == "" {
			return nil, backend.NewError(backend.CodeInvalidIDPResponse, "missing player")
		}
		return b.signInAs(tenantID, "gc-"+req.GameCenter.PlayerID, providerGameCenter)
	case backend.MethodSignUpAnonymous:
		acct := b.newAccount(tenantID)
		acct.Anonymous = true
		return b.issue(acct, providerAnonymous, true)
	default:
		return nil, backend.NewError(backend.CodeOperationNotAllowed, string(req.Method))
	}
}

func (b *Backend) GetAccountInfo(ctx context.Context, req *backend.AccountInfoRequest) (*backend.AccountInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.lock.Lock()
	defer b.lock.Unlock()

	if err := b.enter(OpAccountInfo); err != nil {
		return nil, err
	}
	uid, err := b.verifyIDToken(req.AccessToken)
	if err != nil {
		return nil, err
	}
	acct, ok := b.accounts[uid]
	if !ok {
		return nil, backend.NewError(backend.CodeUserNotFound, "")
	}
	if acct.Disabled {
		return nil, backend.NewError(backend.CodeUserDisabled, "")
	}
	return acct.info(), nil
}

func (b *Backend) RefreshToken(ctx context.Context, req *backend.RefreshRequest) (*backend.RefreshResponse, error) {
	b.lock.Lock()
	gate := b.refreshGate
	if gate != nil {
		b.gated++
	}
	b.lock.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.lock.Lock()
	defer b.lock.Unlock()

	if err := b.enter(OpRefresh); err != nil {
		return nil, err
	}
	rt, ok := b.refreshTokens[req.RefreshToken]
	if !ok {
		return nil, backend.NewError(backend.CodeInvalidRefreshToken, "")
	}
	if b.refreshExpired(rt) {
		return nil, backend.NewError(backend.CodeTokenExpired, "")
	}
	acct, ok := b.accounts[rt.UserID]
	if !ok {
		return nil, backend.NewError(backend.CodeUserNotFound, "")
	}
	if acct.Disabled {
		return nil, backend.NewError(backend.CodeUserDisabled, "")
	}

	idToken, exp, err := b.mintIDToken(acct, providerOf(acct))
	if err != nil {
		return nil, backend.NewError(backend.CodeInternalError, err.Error())
	}
	return &backend.RefreshResponse{AccessToken: idToken, ExpiresAt: exp, UserID: acct.ID}, nil
}

// enter counts the call and pops a queued failure, if any.
func (b *Backend) enter(op string) error {
	b.calls[op]++
	queued := b.failures[op]
	if len(queued) == 0 {
		return nil
	}
	b.failures[op] = queued[1:]
	return queued[0]
}

func (b *Backend) verifyPassword(tenantID string, req *backend.SignInRequest) (*backend.SignInResponse, error) {
	if err := b.checkRecaptcha(req); err != nil {
		return nil, err
	}
	acct := b.findByEmail(tenantID, req.Email)
	if acct == nil {
		return nil, backend.NewError(backend.CodeEmailNotFound, "")
	}
	if acct.PasswordHash == "" || !CheckPasswordHash(req.Password, acct.PasswordHash) {
		return nil, backend.NewError(backend.CodeInvalidPassword, "")
	}
	if acct.Disabled {
		return nil, backend.NewError(backend.CodeUserDisabled, "")
	}
	return b.issue(acct, providerPassword, false)
}

func (b *Backend) signUp(tenantID string, req *backend.SignInRequest) (*backend.SignInResponse, error) {
	if err := b.checkRecaptcha(req); err != nil {
		return nil, err
	}
	if b.findByEmail(tenantID, req.Email) != nil {
		return nil, backend.NewError(backend.CodeEmailExists, "")
	}
	if err := ValidatePasswordStrength(req.Password); err != nil {
		return nil, err
	}
	hash, err := HashPassword(req.Password)
	if err != nil {
		return nil, backend.NewError(backend.CodeInternalError, err.Error())
	}
	acct := b.newAccount(tenantID)
	acct.Email = req.Email
	acct.PasswordHash = hash
	acct.Providers = []sessions.ProviderInfo{{ProviderID: providerPassword, UID: req.Email, Email: req.Email}}
	return b.issue(acct, providerPassword, true)
}

func (b *Backend) emailLinkSignIn(tenantID string, req *backend.SignInRequest) (*backend.SignInResponse, error) {
	email, ok := b.emailLinks[req.OOBCode]
	if !ok || !strings.EqualFold(email, req.Email) {
		return nil, backend.NewError(backend.CodeInvalidOOBCode, "")
	}
	delete(b.emailLinks, req.OOBCode)

	acct := b.findByEmail(tenantID, email)
	isNew := acct == nil
	if isNew {
		acct = b.newAccount(tenantID)
		acct.Email = email
		acct.Providers = []sessions.ProviderInfo{{ProviderID: providerPassword, UID: email, Email: email}}
	}
	acct.EmailVerified = true
	if acct.Disabled {
		return nil, backend.NewError(backend.CodeUserDisabled, "")
	}
	return b.issue(acct, providerEmailLink, isNew)
}

func (b *Backend) verifyAssertion(tenantID string, req *backend.SignInRequest) (*backend.SignInResponse, error) {
	a := req.Assertion
	if a == nil {
		return nil, backend.NewError(backend.CodeInvalidIDPResponse, "missing assertion")
	}
	token := a.IDToken
	if token == "" {
		token = a.AccessToken
	}
	ident, ok := b.assertions[a.ProviderID+"|"+token]
	if !ok {
		return nil, backend.NewError(backend.CodeInvalidIDPResponse, "")
	}

	if acct := b.findByProvider(tenantID, ident.ProviderID, ident.ProviderUID); acct != nil {
		if acct.Disabled {
			return nil, backend.NewError(backend.CodeUserDisabled, "")
		}
		return b.assertionResponse(acct, a, false)
	}

	if existing := b.findByEmail(tenantID, ident.Email); existing != nil && !existing.hasProvider(ident.ProviderID) {
		return &backend.SignInResponse{
			NeedConfirmation: true,
			Email:            ident.Email,
			ProviderID:       ident.ProviderID,
			PendingToken:     uuid.NewString(),
			OAuthIDToken:     a.IDToken,
			OAuthAccessToken: a.AccessToken,
		}, nil
	}

	acct := b.newAccount(tenantID)
	acct.Email = ident.Email
	acct.EmailVerified = ident.Email != ""
	acct.Providers = []sessions.ProviderInfo{{
		ProviderID: ident.ProviderID,
		UID:        ident.ProviderUID,
		Email:      ident.Email,
	}}
	return b.assertionResponse(acct, a, true)
}

func (b *Backend) assertionResponse(acct *Account, a *backend.Assertion, isNew bool) (*backend.SignInResponse, error) {
	resp, err := b.issue(acct, a.ProviderID, isNew)
	if err != nil {
		return nil, err
	}
	resp.Profile = map[string]any{"email": acct.Email}
	resp.OAuthIDToken = a.IDToken
	resp.OAuthAccessToken = a.AccessToken
	return resp, nil
}

func (b *Backend) verifyPhoneNumber(tenantID string, req *backend.SignInRequest) (*backend.SignInResponse, error) {
	p := req.Phone
	if p == nil {
		return nil, backend.NewError(backend.CodeInvalidSessionInfo, "")
	}

	var phoneNumber string
	if p.TemporaryProof != "" {
		number, ok := b.phoneProofs[p.TemporaryProof]
		if !ok || number != p.PhoneNumber {
			return nil, backend.NewError(backend.CodeInvalidSessionInfo, "invalid temporary proof")
		}
		phoneNumber = number
	} else {
		v, ok := b.phoneSessions[p.VerificationID]
		if !ok {
			return nil, backend.NewError(backend.CodeInvalidSessionInfo, "")
		}
		if v.Code != p.VerificationCode {
			return nil, backend.NewError(backend.CodeInvalidCode, "")
		}
		delete(b.phoneSessions, p.VerificationID)
		phoneNumber = v.PhoneNumber
	}

	acct := b.findByProvider(tenantID, providerPhone, phoneNumber)
	isNew := acct == nil
	if isNew {
		acct = b.newAccount(tenantID)
		acct.PhoneNumber = phoneNumber
		acct.Providers = []sessions.ProviderInfo{{ProviderID: providerPhone, UID: phoneNumber, PhoneNumber: phoneNumber}}
	}
	if acct.Disabled {
		return nil, backend.NewError(backend.CodeUserDisabled, "")
	}
	return b.issue(acct, providerPhone, isNew)
}

// signInAs signs in as uid, creating the account on first use.
func (b *Backend) signInAs(tenantID, uid, providerID string) (*backend.SignInResponse, error) {
	acct, ok := b.accounts[uid]
	isNew := !ok
	if isNew {
		now := b.nowTime()
		acct = &Account{ID: uid, TenantID: tenantID, CreatedAt: now}
		b.accounts[uid] = acct
	}
	if acct.TenantID != tenantID {
		return nil, backend.NewError(backend.CodeTenantIDMismatch, "")
	}
	if acct.Disabled {
		return nil, backend.NewError(backend.CodeUserDisabled, "")
	}
	return b.issue(acct, providerID, isNew)
}

func (b *Backend) issue(acct *Account, providerID string, isNew bool) (*backend.SignInResponse, error) {
	acct.LastLoginAt = b.nowTime()
	idToken, _, err := b.mintIDToken(acct, providerID)
	if err != nil {
		return nil, backend.NewError(backend.CodeInternalError, err.Error())
	}
	refreshToken, err := b.createRefreshToken(acct)
	if err != nil {
		return nil, backend.NewError(backend.CodeInternalError, err.Error())
	}
	return &backend.SignInResponse{
		IDToken:      idToken,
		RefreshToken: refreshToken,
		ExpiresIn:    int64(b.tokenLifetime / time.Second),
		LocalID:      acct.ID,
		IsNewUser:    isNew,
		ProviderID:   providerID,
		Email:        acct.Email,
	}, nil
}

func (b *Backend) checkRecaptcha(req *backend.SignInRequest) error {
	if b.recaptcha == "" || req.CaptchaResponse == b.recaptcha {
		return nil
	}
	return backend.NewError(backend.CodeInternalError, string(backend.CodeMissingRecaptchaToken))
}

func (b *Backend) newAccount(tenantID string) *Account {
	now := b.nowTime()
	acct := &Account{ID: uuid.NewString(), TenantID: tenantID, CreatedAt: now}
	b.accounts[acct.ID] = acct
	return acct
}

func (b *Backend) findByEmail(tenantID, email string) *Account {
	if email == "" {
		return nil
	}
	for _, acct := range b.accounts {
		if acct.TenantID == tenantID && strings.EqualFold(acct.Email, email) {
			return acct
		}
	}
	return nil
}

func (b *Backend) findByProvider(tenantID, providerID, providerUID string) *Account {
	for _, acct := range b.accounts {
		if acct.TenantID != tenantID {
			continue
		}
		for _, p := range acct.Providers {
			if p.ProviderID == providerID && p.UID == providerUID {
				return acct
			}
		}
	}
	return nil
}

func (b *Backend) revokeLocked(uid string) {
	if token, ok := b.refreshByUser[uid]; ok {
		delete(b.refreshTokens, token)
		delete(b.refreshByUser, uid)
	}
}

func providerOf(acct *Account) string {
	if acct.Anonymous {
		return providerAnonymous
	}
	if len(acct.Providers) > 0 {
		return acct.Providers[0].ProviderID
	}
	return providerCustom
}

func tenantOf(cfg backend.RequestConfig) string {
	if cfg.TenantID == nil {
		return ""
	}
	return *cfg.TenantID
}
