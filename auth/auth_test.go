package auth_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-auth-client/auth"
	"github.com/jrsteele09/go-auth-client/backend/backendfake"
	"github.com/jrsteele09/go-auth-client/internal/metrics"
	"github.com/jrsteele09/go-auth-client/keychain"
	"github.com/jrsteele09/go-auth-client/keychain/keychainfake"
	"github.com/jrsteele09/go-auth-client/listeners"
	"github.com/jrsteele09/go-auth-client/persistence"
	"github.com/jrsteele09/go-auth-client/refresh/refreshfake"
	"github.com/jrsteele09/go-auth-client/sessions"
	"github.com/jrsteele09/go-auth-client/tenants"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

const (
	testAppName      = "test-app"
	testAPIKey       = "test-api-key"
	testProjectID    = "test-project"
	testUserEmail    = "john.doe@example.com"
	testUserPassword = "password123"
	waitFor          = 2 * time.Second
	tick             = 5 * time.Millisecond
)

var testNow = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// testFixture holds all test dependencies
type testFixture struct {
	backend  *backendfake.Backend
	keychain *keychainfake.FakeKeychain
	clock    *refreshfake.FakeClock
	metrics  *metrics.Metrics
	auth     *auth.Auth
}

// setupTestFixture creates the dependencies without starting an Auth.
func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	return setupTestFixtureAt(t, testNow)
}

// setupTestFixtureAt is setupTestFixture with the clock starting at now.
func setupTestFixtureAt(t *testing.T, now time.Time) *testFixture {
	t.Helper()
	clock := refreshfake.NewFakeClock(now)
	return &testFixture{
		backend:  backendfake.New(backendfake.WithNowTime(clock.Now), backendfake.WithProjectID(testProjectID)),
		keychain: keychainfake.NewFakeKeychain(),
		clock:    clock,
		metrics:  metrics.New(prometheus.NewRegistry()),
	}
}

// start creates the Auth under test.
func (f *testFixture) start(t *testing.T, opts ...auth.Option) *auth.Auth {
	t.Helper()
	a, err := f.newAuth(opts...)
	require.NoError(t, err)
	t.Cleanup(a.Close)
	f.auth = a
	return a
}

func (f *testFixture) newAuth(opts ...auth.Option) (*auth.Auth, error) {
	base := []auth.Option{
		auth.WithClock(f.clock),
		auth.WithMetrics(f.metrics),
	}
	return auth.New(context.Background(), testApp(), f.backend, f.keychain, append(base, opts...)...)
}

// setupSignedIn starts an Auth with a signed-in password user.
func setupSignedIn(t *testing.T, opts ...auth.Option) (*testFixture, *sessions.Session) {
	t.Helper()
	f := setupTestFixture(t)
	_, err := f.backend.CreateAccount("", testUserEmail, testUserPassword)
	require.NoError(t, err)
	a := f.start(t, opts...)

	result, err := a.SignInWithEmailPassword(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)
	return f, result.User
}

func testApp() auth.App {
	return auth.App{Name: testAppName, APIKey: testAPIKey, ProjectID: testProjectID}
}

func testIdentity() persistence.Identity {
	return persistence.Identity{AppID: testAppName, APIKey: testAPIKey, ProjectID: testProjectID}
}

func defaultKey() keychain.Key {
	return testIdentity().KeyFor(persistence.Default())
}

func storedSession(uid string) *sessions.Session {
	return &sessions.Session{
		UID:               uid,
		AccessToken:       "stored-access-" + uid,
		AccessTokenExpiry: testNow.Add(time.Hour),
		RefreshToken:      "stored-refresh-" + uid,
		APIKey:            testAPIKey,
		Email:             uid + "@example.com",
	}
}

func plant(t *testing.T, kc *keychainfake.FakeKeychain, key keychain.Key, s *sessions.Session) {
	t.Helper()
	data, err := sessions.Encode(s)
	require.NoError(t, err)
	kc.Put(key, data)
}

// recorder collects listener events.
type recorder struct {
	mu     sync.Mutex
	events []listeners.Event
}

func (r *recorder) record(e listeners.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) uids() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.UID)
	}
	return out
}

func (r *recorder) tokens() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.AccessToken)
	}
	return out
}

func waitIdle(t *testing.T, a *auth.Auth) {
	t.Helper()
	require.NoError(t, a.WaitIdle(context.Background()))
}

func TestNew_RequiresCollaborators(t *testing.T) {
	f := setupTestFixture(t)

	_, err := auth.New(context.Background(), testApp(), nil, f.keychain)
	require.Error(t, err)

	_, err = auth.New(context.Background(), testApp(), f.backend, nil)
	require.Error(t, err)

	_, err = auth.New(context.Background(), auth.App{Name: testAppName}, f.backend, f.keychain)
	require.Error(t, err)
}

func TestNew_RestoresStoredSession(t *testing.T) {
	f := setupTestFixture(t)
	plant(t, f.keychain, defaultKey(), storedSession("u1"))

	a := f.start(t)

	user := a.CurrentUser()
	require.NotNil(t, user)
	require.Equal(t, "u1", user.UID)
	require.Equal(t, "stored-refresh-u1", user.RefreshToken)
}

func TestNew_DiscardsCorruptSession(t *testing.T) {
	f := setupTestFixture(t)
	f.keychain.Put(defaultKey(), []byte("not a session"))

	a := f.start(t)

	require.Nil(t, a.CurrentUser())
	require.False(t, f.keychain.Has(defaultKey()))
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PersistenceErrors().WithLabelValues("corrupt")))
}

func TestNew_LoadsSessionOnceKeychainBecomesAvailable(t *testing.T) {
	f := setupTestFixture(t)
	plant(t, f.keychain, defaultKey(), storedSession("u1"))
	f.keychain.Seal()

	a := f.start(t)
	require.Nil(t, a.CurrentUser())

	f.keychain.Unseal()
	require.Eventually(t, func() bool {
		return a.CurrentUser().GetUID() == "u1"
	}, waitFor, tick)
}

func TestNew_RejectsStoredSessionOfOtherTenant(t *testing.T) {
	f := setupTestFixture(t)
	s := storedSession("u1")
	s.TenantID = tenants.Normalize("tenant-b")
	plant(t, f.keychain, defaultKey(), s)

	a := f.start(t, auth.WithTenantID("tenant-a"))

	require.Nil(t, a.CurrentUser())
}

func TestCurrentUser_MatchesStoredRecord(t *testing.T) {
	f := setupTestFixtureAt(t, time.Date(2025, 3, 1, 12, 0, 0, 123456789, time.UTC))
	_, err := f.backend.CreateAccount("", testUserEmail, testUserPassword)
	require.NoError(t, err)
	a := f.start(t)
	ctx := context.Background()

	result, err := a.SignInWithEmailPassword(ctx, testUserEmail, testUserPassword)
	require.NoError(t, err)

	stored := func() *sessions.Session {
		data, err := f.keychain.Get(ctx, defaultKey())
		require.NoError(t, err)
		s, err := sessions.Decode(data)
		require.NoError(t, err)
		return s
	}
	require.Equal(t, stored(), a.CurrentUser())
	require.Equal(t, a.CurrentUser(), result.User)

	_, err = a.GetIDToken(ctx, true)
	require.NoError(t, err)
	require.Equal(t, stored(), a.CurrentUser())
}

func TestCurrentUser_ReturnsCopy(t *testing.T) {
	f, _ := setupSignedIn(t)

	user := f.auth.CurrentUser()
	user.DisplayName = "changed"

	require.Empty(t, f.auth.CurrentUser().DisplayName)
}

func TestUpdateCurrentUser(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t)
	ctx := context.Background()

	require.ErrorIs(t, a.UpdateCurrentUser(ctx, nil), auth.ErrNilUser)

	foreign := storedSession("u1")
	foreign.APIKey = "other-key"
	require.ErrorIs(t, a.UpdateCurrentUser(ctx, foreign), auth.ErrInvalidUserToken)
	require.Nil(t, a.CurrentUser())

	require.NoError(t, a.UpdateCurrentUser(ctx, storedSession("u1")))
	require.Equal(t, "u1", a.CurrentUser().UID)
	require.True(t, f.keychain.Has(defaultKey()))
}

func TestUpdateCurrentUser_TenantMismatch(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t, auth.WithTenantID("tenant-a"))

	s := storedSession("u1")
	s.TenantID = tenants.Normalize("tenant-b")
	err := a.UpdateCurrentUser(context.Background(), s)

	require.ErrorIs(t, err, tenants.ErrMismatch)
	require.Nil(t, a.CurrentUser())
	require.False(t, f.keychain.Has(defaultKey()))
}

func TestUpdateCurrentUser_PersistenceFailureKeepsPreviousUser(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t)
	ctx := context.Background()
	require.NoError(t, a.UpdateCurrentUser(ctx, storedSession("u1")))

	f.keychain.FailSets(errors.New("disk full"))
	err := a.UpdateCurrentUser(ctx, storedSession("u2"))

	require.Error(t, err)
	require.Equal(t, "u1", a.CurrentUser().UID)
	require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.PersistenceErrors().WithLabelValues("other")))
}

func TestSignOut(t *testing.T) {
	f, _ := setupSignedIn(t)
	require.True(t, f.keychain.Has(defaultKey()))

	require.NoError(t, f.auth.SignOut(context.Background()))

	require.Nil(t, f.auth.CurrentUser())
	require.False(t, f.keychain.Has(defaultKey()))
	require.Empty(t, f.clock.Pending())
}

func TestSignOut_KeychainUnavailableKeepsUser(t *testing.T) {
	f, user := setupSignedIn(t)
	f.keychain.Seal()

	err := f.auth.SignOut(context.Background())

	require.ErrorIs(t, err, keychain.ErrUnavailable)
	require.Equal(t, user.UID, f.auth.CurrentUser().GetUID())
}

func TestListeners_AuthStateDedupesByUID(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t, auth.WithAutoRefresh(false))
	ctx := context.Background()

	authState := &recorder{}
	idToken := &recorder{}
	a.AddAuthStateListener(authState.record)
	a.AddIDTokenListener(idToken.record)

	require.NoError(t, a.UpdateCurrentUser(ctx, storedSession("u1")))
	refreshed := storedSession("u1")
	refreshed.AccessToken = "stored-access-u1-v2"
	require.NoError(t, a.UpdateCurrentUser(ctx, refreshed))
	require.NoError(t, a.UpdateCurrentUser(ctx, refreshed))
	require.NoError(t, a.UpdateCurrentUser(ctx, storedSession("u2")))
	require.NoError(t, a.SignOut(ctx))
	require.NoError(t, a.SignOut(ctx))
	waitIdle(t, a)

	require.Equal(t, []string{"", "u1", "u2", ""}, authState.uids())
	require.Equal(t, []string{"", "u1", "u1", "u2", ""}, idToken.uids())
	require.Equal(t, []string{"", "stored-access-u1", "stored-access-u1-v2", "stored-access-u2", ""}, idToken.tokens())
	require.Equal(t, 4.0, testutil.ToFloat64(f.metrics.Notifications()))
}

func TestListeners_WelcomeCarriesCurrentUser(t *testing.T) {
	f, user := setupSignedIn(t)

	rec := &recorder{}
	f.auth.AddAuthStateListener(rec.record)
	waitIdle(t, f.auth)

	require.Equal(t, []string{user.UID}, rec.uids())
	rec.mu.Lock()
	require.Equal(t, user.Email, rec.events[0].Session.Email)
	require.Equal(t, testAppName, rec.events[0].AppID)
	rec.mu.Unlock()
}

func TestListeners_Remove(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t)

	rec := &recorder{}
	h := a.AddIDTokenListener(rec.record)
	waitIdle(t, a)
	a.RemoveIDTokenListener(h)

	require.NoError(t, a.UpdateCurrentUser(context.Background(), storedSession("u1")))
	waitIdle(t, a)

	require.Equal(t, []string{""}, rec.uids())
}

func TestListeners_AddAfterClose(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t)
	a.Close()

	called := make(chan struct{}, 2)
	cb := func(listeners.Event) { called <- struct{}{} }

	require.Equal(t, listeners.Handle{}, a.AddAuthStateListener(cb))
	require.Equal(t, listeners.Handle{}, a.AddIDTokenListener(cb))
	a.RemoveIDTokenListener(listeners.Handle{})
	require.Empty(t, called)
}

func TestListeners_CallbackMayCallBack(t *testing.T) {
	f := setupTestFixture(t)
	a := f.start(t)

	seen := make(chan string, 4)
	a.AddAuthStateListener(func(e listeners.Event) {
		if _, err := a.Scope(context.Background()); err != nil {
			seen <- err.Error()
			return
		}
		seen <- e.UID
	})
	require.NoError(t, a.UpdateCurrentUser(context.Background(), storedSession("u1")))
	waitIdle(t, a)

	require.Equal(t, "", <-seen)
	require.Equal(t, "u1", <-seen)
}
