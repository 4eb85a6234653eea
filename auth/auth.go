// Package auth is the client-side session manager: it holds the signed-in
// user, keeps the access token fresh, persists the session through a
// keychain and tells listeners when the identity or token changes. Every
// mutation of the session runs on one serial queue.
package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jrsteele09/go-auth-client/backend"
	"github.com/jrsteele09/go-auth-client/credentials"
	"github.com/jrsteele09/go-auth-client/internal/config"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/internal/serial"
	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/jrsteele09/go-auth-client/listeners"
	"github.com/jrsteele09/go-auth-client/persistence"
	"github.com/jrsteele09/go-auth-client/refresh"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/tenants"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const defaultRequestTimeout = 30 * time.Second

// App identifies the client application.
type App struct {
	Name      string // Instance name, keys the default-scope storage
	APIKey    string
	ProjectID string
}

// VerificationTokenProvider produces the verification artifact (a reCAPTCHA
// token) the backend may demand before password sign-in or sign-up.
type VerificationTokenProvider interface {
	VerificationToken(ctx context.Context, action string) (string, error)
}

// GameCenterProvider produces an identity proof for the local game player.
type GameCenterProvider interface {
	LocalPlayerProof(ctx context.Context) (*credentials.GameCenter, error)
}

// Auth manages the current user of one app.
type Auth struct {
	app       App
	backend   backend.Client
	keychain  keychain.Store
	store     *persistence.Store
	serial    *serial.Queue
	listeners *listeners.Registry
	scheduler *refresh.Scheduler
	refreshes singleflight.Group

	verificationTokens VerificationTokenProvider
	gameCenter         GameCenterProvider
	metrics            *metrics.Metrics
	logger             zerolog.Logger
	nowTime            func() time.Time
	clock              refresh.Clock
	appState           refresh.AppState
	requestTimeout     time.Duration

	current atomic.Pointer[sessions.Session]

	settingsLock sync.RWMutex
	tenantID     *string
	languageCode string
	emulatorHost string
	autoRefresh  bool

	// Owned by the serial queue.
	scope             persistence.Scope
	lastNotifiedUID   string
	lastNotifiedToken string

	closed    chan struct{}
	closeOnce sync.Once
}

// Option configures an Auth.
type Option func(*Auth)

func WithLogger(logger zerolog.Logger) Option {
	return func(a *Auth) {
		a.logger = logger
	}
}

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) Option {
	return func(a *Auth) {
		a.nowTime = nowFunc
	}
}

// WithClock sets the clock the refresh scheduler arms timers on.
func WithClock(clock refresh.Clock) Option {
	return func(a *Auth) {
		a.clock = clock
	}
}

func WithAppState(appState refresh.AppState) Option {
	return func(a *Auth) {
		a.appState = appState
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Auth) {
		a.metrics = m
	}
}

func WithVerificationTokenProvider(p VerificationTokenProvider) Option {
	return func(a *Auth) {
		a.verificationTokens = p
	}
}

func WithGameCenterProvider(p GameCenterProvider) Option {
	return func(a *Auth) {
		a.gameCenter = p
	}
}

func WithTenantID(tenantID string) Option {
	return func(a *Auth) {
		a.tenantID = tenants.Normalize(tenantID)
	}
}

func WithLanguageCode(code string) Option {
	return func(a *Auth) {
		a.languageCode = code
	}
}

// WithEmulator routes backend requests to a local emulator at host:port.
func WithEmulator(host string) Option {
	return func(a *Auth) {
		a.emulatorHost = host
	}
}

func WithAutoRefresh(enabled bool) Option {
	return func(a *Auth) {
		a.autoRefresh = enabled
	}
}

// WithScope selects the storage scope the stored session is loaded from.
func WithScope(scope persistence.Scope) Option {
	return func(a *Auth) {
		a.scope = scope
	}
}

func WithRequestTimeout(timeout time.Duration) Option {
	return func(a *Auth) {
		a.requestTimeout = timeout
	}
}

// WithConfig applies tenant, language, emulator, refresh and storage scope
// settings from cfg.
func WithConfig(cfg config.Config) Option {
	return func(a *Auth) {
		a.tenantID = tenants.Normalize(cfg.GetTenantID())
		a.languageCode = cfg.GetLanguageCode()
		a.emulatorHost = cfg.GetEmulatorHost()
		a.autoRefresh = cfg.GetAutoRefresh()
		a.requestTimeout = cfg.GetRequestTimeout()
		a.scope = persistence.Shared(cfg.GetAccessGroup(), cfg.GetShareAcrossDevices())
	}
}

// New creates the session manager and restores the stored session, if any.
func New(ctx context.Context, app App, client backend.Client, kc keychain.Store, options ...Option) (*Auth, error) {
	if client == nil {
		return nil, errors.New("[auth.New] backend client is required")
	}
	if kc == nil {
		return nil, errors.New("[auth.New] keychain is required")
	}
	if app.APIKey == "" {
		return nil, errors.New("[auth.New] api key is required")
	}

	a := &Auth{
		app:            app,
		backend:        client,
		keychain:       kc,
		logger:         log.Logger,
		clock:          refresh.SystemClock(),
		autoRefresh:    true,
		requestTimeout: defaultRequestTimeout,
		closed:         make(chan struct{}),
	}
	for _, opt := range options {
		opt(a)
	}
	if a.nowTime == nil {
		a.nowTime = a.clock.Now
	}
	a.logger = a.logger.With().Str("component", "auth").Str("app", app.Name).Logger()

	a.store = persistence.New(kc, persistence.Identity{AppID: app.Name, APIKey: app.APIKey, ProjectID: app.ProjectID})
	a.serial = serial.New()
	a.listeners = listeners.New(listeners.WithLogger(a.logger))

	schedulerOpts := []refresh.Option{
		refresh.WithClock(a.clock),
		refresh.WithExecutor(a.serial.RunAsync),
		refresh.WithRequestTimeout(a.requestTimeout),
		refresh.WithMetrics(a.metrics),
		refresh.WithLogger(a.logger),
	}
	if a.appState != nil {
		schedulerOpts = append(schedulerOpts, refresh.WithAppState(a.appState))
	}
	a.scheduler = refresh.New(scheduledRefresher{a}, scheduledRefresher{a}, schedulerOpts...)

	if err := a.serial.RunSync(ctx, func() { a.loadStoredSessionLocked(ctx, true) }); err != nil {
		a.Close()
		return nil, errors.Wrap(err, "[auth.New] loading stored session")
	}
	return a, nil
}

// Close stops background work. The Auth must not be used afterwards.
func (a *Auth) Close() {
	a.closeOnce.Do(func() {
		close(a.closed)
		a.scheduler.Close()
		a.serial.Close()
		a.listeners.Close()
	})
}

// App returns the app identity.
func (a *Auth) App() App {
	return a.app
}

// WaitIdle blocks until every queued session mutation and listener
// delivery has completed.
func (a *Auth) WaitIdle(ctx context.Context) error {
	if err := a.serial.RunSync(ctx, func() {}); err != nil {
		return err
	}
	return a.listeners.Flush(ctx)
}

// RefreshState reports the state of the background refresh scheduler.
func (a *Auth) RefreshState() refresh.State {
	return a.scheduler.State()
}

func (a *Auth) requestConfig() backend.RequestConfig {
	a.settingsLock.RLock()
	defer a.settingsLock.RUnlock()
	cfg := backend.RequestConfig{
		APIKey:       a.app.APIKey,
		AppID:        a.app.Name,
		LanguageCode: a.languageCode,
		EmulatorHost: a.emulatorHost,
	}
	if a.tenantID != nil {
		tenantID := *a.tenantID
		cfg.TenantID = &tenantID
	}
	return cfg
}

func (a *Auth) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.requestTimeout)
}

// scheduledRefresher adapts Auth to the refresh scheduler.
type scheduledRefresher struct {
	a *Auth
}

func (r scheduledRefresher) Refresh(ctx context.Context, fingerprint string) error {
	_, err := r.a.refreshSession(ctx, fingerprint)
	return err
}

func (r scheduledRefresher) CurrentFingerprint() string {
	return r.a.current.Load().Fingerprint()
}
