package session

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/core/ratelimit"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/api"
	"github.com/trezcool/darasa/storage/kv"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type fakeMonitor struct {
	mu       sync.Mutex
	onSignal func(Signal)
	starts   int
	stops    int
}

func (m *fakeMonitor) Start(_ context.Context, _ string, onSignal func(Signal), _ func()) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	m.onSignal = onSignal
	return nil
}

func (m *fakeMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
}

func (m *fakeMonitor) signal(sig Signal) {
	m.mu.Lock()
	fn := m.onSignal
	m.mu.Unlock()
	if fn != nil {
		fn(sig)
	}
}

type manualTimer struct{ stopped bool }

func (t *manualTimer) Stop() bool {
	t.stopped = true
	return true
}

type fixture struct {
	svc     *Service
	mock    *api.MockTransport
	bus     *event.Bus
	store   kv.Store
	monitor *fakeMonitor

	mu        sync.Mutex
	timerDurs []time.Duration
	timerFns  []func()
}

func (f *fixture) lastTimer() (time.Duration, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.timerDurs) == 0 {
		return 0, nil
	}
	return f.timerDurs[len(f.timerDurs)-1], f.timerFns[len(f.timerFns)-1]
}

func testConf() *core.Config {
	return &core.Config{
		APIBaseURL:            "http://test.local/api",
		WSBaseURL:             "ws://test.local",
		APITimeout:            time.Second,
		MaxRetryAttempts:      2,
		MaxAPICallsPerMinute:  1000,
		CacheDuration:         5 * time.Minute,
		CacheMaxItems:         10,
		TokenRefreshThreshold: 5 * time.Minute,
		SessionCheckInterval:  time.Hour,
		MaxLoginAttempts:      5,
		LoginLockoutDuration:  15 * time.Minute,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conf := testConf()
	mock := api.NewMockTransport()
	bus := event.NewBus(nopLogger{})
	store := kv.OpenInMem()
	client := api.NewClient(&api.Options{
		Conf:       conf,
		Bus:        bus,
		Logger:     nopLogger{},
		HTTPClient: &http.Client{Transport: mock},
	})
	f := &fixture{mock: mock, bus: bus, store: store, monitor: &fakeMonitor{}}
	f.svc = NewService(Options{
		Conf:    conf,
		Bus:     bus,
		Store:   store,
		API:     client,
		Monitor: f.monitor,
		Limiter: ratelimit.NewLoginLimiter(store, conf.MaxLoginAttempts, conf.LoginLockoutDuration),
		Logger:  nopLogger{},
	})
	f.svc.timerFunc = func(d time.Duration, fn func()) timerStopper {
		f.mu.Lock()
		f.timerDurs = append(f.timerDurs, d)
		f.timerFns = append(f.timerFns, fn)
		f.mu.Unlock()
		return &manualTimer{}
	}
	return f
}

func loginOK(f *fixture) {
	f.mock.Handle(http.MethodPost, "/api/auth/login", http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"access_token":  "tok-1",
			"refresh_token": "ref-1",
			"expires_in":    3600,
			"session_id":    "sess-1",
			"user":          map[string]interface{}{"id": "u1", "email": "jo@test.com", "role": "student"},
		},
	})
}

func TestLoginEstablishesSession(t *testing.T) {
	f := newFixture(t)
	loginOK(f)

	var loggedIn []event.Login
	f.bus.Subscribe(event.TopicLogin, func(e event.Event) {
		loggedIn = append(loggedIn, e.(event.Login))
	})

	usr, err := f.svc.Login(context.Background(), user.LoginForm{Email: "jo@test.com", Password: "pass1234"})

	require.NoError(t, err)
	assert.Equal(t, "u1", usr.ID)
	assert.True(t, f.svc.Authenticated())
	assert.Equal(t, StateAuthenticated, f.svc.State())
	assert.Equal(t, "tok-1", f.svc.AccessToken())
	assert.Equal(t, "sess-1", f.svc.SessionID())
	require.Len(t, loggedIn, 1)
	assert.Equal(t, "u1", loggedIn[0].UserID)

	// tokens survive in the store
	var tok string
	require.NoError(t, f.store.GetSecure(kv.KeyAccessToken, &tok))
	assert.Equal(t, "tok-1", tok)

	// push channel opened for the new session
	assert.Equal(t, 1, f.monitor.starts)
}

func TestLoginArmsRefreshTimerBeforeExpiry(t *testing.T) {
	f := newFixture(t)
	loginOK(f)

	_, err := f.svc.Login(context.Background(), user.LoginForm{Email: "jo@test.com", Password: "pass1234"})
	require.NoError(t, err)

	// expires_in 3600s minus the 5 min threshold
	d, fn := f.lastTimer()
	require.NotNil(t, fn)
	assert.Equal(t, 3300*time.Second, d)
}

func TestLoginInvalidForm(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Login(context.Background(), user.LoginForm{Email: "not-an-email"})
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 0, f.mock.Calls(http.MethodPost, "/api/auth/login"))
}

func TestLoginLockoutAfterRepeatedFailures(t *testing.T) {
	f := newFixture(t)
	f.mock.Handle(http.MethodPost, "/api/auth/login", http.StatusUnauthorized,
		map[string]string{"message": "invalid credentials"})

	form := user.LoginForm{Email: "jo@test.com", Password: "wrongpass"}
	for i := 0; i < 5; i++ {
		_, err := f.svc.Login(context.Background(), form)
		require.Error(t, err)
	}
	assert.Equal(t, 5, f.mock.Calls(http.MethodPost, "/api/auth/login"))

	// locked out now; no request leaves the client
	_, err := f.svc.Login(context.Background(), form)
	var vErr *core.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "too many failed attempts")
	assert.Equal(t, 5, f.mock.Calls(http.MethodPost, "/api/auth/login"))
}

func TestScheduledRefreshRotatesTokens(t *testing.T) {
	f := newFixture(t)
	loginOK(f)
	f.mock.Handle(http.MethodPost, "/api/auth/refresh", http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"access_token":  "tok-2",
			"refresh_token": "ref-2",
			"expires_in":    3600,
		},
	})

	_, err := f.svc.Login(context.Background(), user.LoginForm{Email: "jo@test.com", Password: "pass1234"})
	require.NoError(t, err)

	_, fire := f.lastTimer()
	require.NotNil(t, fire)
	fire()

	assert.Equal(t, "tok-2", f.svc.AccessToken())
	assert.Equal(t, StateAuthenticated, f.svc.State())
	// a fresh timer was armed for the rotated token
	d, _ := f.lastTimer()
	assert.Equal(t, 3300*time.Second, d)
}

func TestRefreshFailureExpiresSession(t *testing.T) {
	f := newFixture(t)
	loginOK(f)
	f.mock.Handle(http.MethodPost, "/api/auth/refresh", http.StatusUnauthorized,
		map[string]string{"message": "invalid refresh token"})

	_, err := f.svc.Login(context.Background(), user.LoginForm{Email: "jo@test.com", Password: "pass1234"})
	require.NoError(t, err)

	var expired int
	f.bus.Subscribe(event.TopicSessionExpired, func(event.Event) { expired++ })

	require.Error(t, f.svc.Refresh(context.Background()))

	assert.Equal(t, StateExpired, f.svc.State())
	assert.False(t, f.svc.Authenticated())
	assert.GreaterOrEqual(t, expired, 1)
	assert.False(t, f.store.Has(kv.KeyAccessToken))
}

func TestTerminatedSignalConflictsSession(t *testing.T) {
	f := newFixture(t)
	loginOK(f)

	_, err := f.svc.Login(context.Background(), user.LoginForm{Email: "jo@test.com", Password: "pass1234"})
	require.NoError(t, err)

	var conflicts int
	f.bus.Subscribe(event.TopicSessionConflict, func(event.Event) { conflicts++ })

	f.monitor.signal(SignalTerminated)

	assert.Equal(t, StateConflicted, f.svc.State())
	assert.False(t, f.svc.Authenticated())
	assert.Equal(t, 1, conflicts)
	assert.False(t, f.store.Has(kv.KeyAccessToken))
	assert.False(t, f.store.Has(kv.KeyUser))
}

func TestRestoreValidatesPersistedSession(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.store.SetSecure(kv.KeyAccessToken, "tok-old"))
	require.NoError(t, f.store.SetSecure(kv.KeyRefreshToken, "ref-old"))
	require.NoError(t, f.store.Set(kv.KeySessionID, "sess-old"))
	f.mock.Handle(http.MethodGet, "/api/auth/check-session", http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"session_id": "sess-old",
			"expires_in": 1800,
			"user":       map[string]interface{}{"id": "u1", "email": "jo@test.com", "role": "student"},
		},
	})

	require.True(t, f.svc.Restore(context.Background()))

	assert.True(t, f.svc.Authenticated())
	usr, ok := f.svc.CurrentUser()
	require.True(t, ok)
	assert.Equal(t, "u1", usr.ID)
	// 1800s minus the 5 min threshold
	d, _ := f.lastTimer()
	assert.Equal(t, 1500*time.Second, d)
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return tok
}

func TestTokenClaimsDecodedForDisplay(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.TokenClaims()
	assert.ErrorIs(t, err, ErrNotAuthenticated)

	access := signedToken(t, jwt.MapClaims{"sub": "u1", "role": "student"})
	f.mock.Handle(http.MethodPost, "/api/auth/login", http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"access_token":  access,
			"refresh_token": "ref-1",
			"expires_in":    3600,
			"session_id":    "sess-1",
			"user":          map[string]interface{}{"id": "u1", "email": "jo@test.com", "role": "student"},
		},
	})
	_, err = f.svc.Login(context.Background(), user.LoginForm{Email: "jo@test.com", Password: "pass1234"})
	require.NoError(t, err)

	claims, err := f.svc.TokenClaims()
	require.NoError(t, err)
	assert.Equal(t, "u1", claims["sub"])
	assert.Equal(t, "student", claims["role"])
}

func TestRestoreFallsBackToTokenExpiry(t *testing.T) {
	f := newFixture(t)
	exp := time.Now().Add(2 * time.Hour).Unix()
	access := signedToken(t, jwt.MapClaims{"sub": "u1", "exp": exp})
	require.NoError(t, f.store.SetSecure(kv.KeyAccessToken, access))
	// no persisted expiry, and the server omits expires_in
	f.mock.Handle(http.MethodGet, "/api/auth/check-session", http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"session_id": "sess-old",
			"user":       map[string]interface{}{"id": "u1", "email": "jo@test.com", "role": "student"},
		},
	})

	require.True(t, f.svc.Restore(context.Background()))
	assert.True(t, f.svc.Authenticated())

	// the expiry in effect came from the token's exp claim
	var ms int64
	require.NoError(t, f.store.Get(kv.KeyTokenExpiry, &ms))
	assert.Equal(t, exp*1000, ms)
}

func TestRestoreWithNothingPersisted(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.svc.Restore(context.Background()))
	assert.Equal(t, StateAnonymous, f.svc.State())
	assert.Equal(t, 0, f.mock.Calls(http.MethodGet, "/api/auth/check-session"))
}

func TestExternalTokenDeletionForcesLogout(t *testing.T) {
	f := newFixture(t)
	loginOK(f)

	_, err := f.svc.Login(context.Background(), user.LoginForm{Email: "jo@test.com", Password: "pass1234"})
	require.NoError(t, err)

	var outs int
	f.bus.Subscribe(event.TopicLogout, func(event.Event) { outs++ })

	// another consumer of the store wipes the token
	require.NoError(t, f.store.Delete(kv.KeyAccessToken))

	assert.Equal(t, StateAnonymous, f.svc.State())
	assert.False(t, f.svc.Authenticated())
	assert.Equal(t, 1, outs)
}

func TestHasRole(t *testing.T) {
	f := newFixture(t)
	loginOK(f)
	_, err := f.svc.Login(context.Background(), user.LoginForm{Email: "jo@test.com", Password: "pass1234"})
	require.NoError(t, err)

	assert.True(t, f.svc.HasRole(user.RoleStudent))
	assert.True(t, f.svc.HasRole(user.RoleStudent, user.RoleAdmin))
	assert.False(t, f.svc.HasRole(user.RoleAdmin))
}
