package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/core/ratelimit"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/api"
	"github.com/trezcool/darasa/storage/kv"
)

// ErrNotAuthenticated is returned by operations requiring a live session.
var ErrNotAuthenticated = errors.New("not authenticated")

// timerStopper is the handle to a scheduled refresh; satisfied by *time.Timer.
type timerStopper interface {
	Stop() bool
}

// Options configures a Service. Conf, Bus, Store and API are required.
type Options struct {
	Conf    *core.Config
	Bus     *event.Bus
	Store   kv.Store
	API     *api.Client
	Monitor Monitor // nil disables push; polling is used instead
	Limiter *ratelimit.LoginLimiter
	Logger  core.Logger
}

// Service owns the session lifecycle: credentials in and out, token
// persistence, proactive refresh, and out-of-band invalidation via the
// push channel (or polling when the channel is unavailable).
type Service struct {
	conf    *core.Config
	bus     *event.Bus
	store   kv.Store
	api     *api.Client
	monitor Monitor
	limiter *ratelimit.LoginLimiter
	log     core.Logger

	mu           sync.Mutex
	state        State
	sess         Session
	refreshTimer timerStopper
	pollStop     chan struct{}
	monitorCtx   context.CancelFunc

	nowFunc   func() time.Time
	timerFunc func(d time.Duration, f func()) timerStopper
}

var _ api.TokenSource = (*Service)(nil)

func NewService(opts Options) *Service {
	s := &Service{
		conf:    opts.Conf,
		bus:     opts.Bus,
		store:   opts.Store,
		api:     opts.API,
		monitor: opts.Monitor,
		limiter: opts.Limiter,
		log:     opts.Logger,
		state:   StateAnonymous,
		nowFunc: time.Now,
		timerFunc: func(d time.Duration, f func()) timerStopper {
			return time.AfterFunc(d, f)
		},
	}
	s.api.SetTokenSource(s)
	s.api.SetRefreshFunc(func(ctx context.Context) bool {
		return s.Refresh(ctx) == nil
	})

	// invalidation events may originate here, in the API client or in the
	// push channel; teardown happens in one place via these subscriptions.
	s.bus.Subscribe(event.TopicSessionExpired, func(event.Event) {
		s.teardown(StateExpired)
	})
	s.bus.Subscribe(event.TopicSessionConflict, func(event.Event) {
		s.teardown(StateConflicted)
	})

	// an access token deleted out from under us (another tab logged out,
	// store cleared) forces a local logout.
	s.store.OnChange(func(key string, deleted bool) {
		if key != kv.KeyAccessToken || !deleted {
			return
		}
		s.mu.Lock()
		active := s.state == StateAuthenticated || s.state == StateRefreshing
		s.mu.Unlock()
		if active {
			s.teardown(StateAnonymous)
			s.bus.Publish(event.Logout{})
		}
	})
	return s
}

// State returns the current lifecycle state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether a live session is held. A session mid
// refresh still counts.
func (s *Service) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateRefreshing:
		return true
	case StateAuthenticated:
		return s.sess.ExpiresAt.IsZero() || s.nowFunc().Before(s.sess.ExpiresAt)
	}
	return false
}

// CurrentUser returns the authenticated user, if any.
func (s *Service) CurrentUser() (user.User, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated && s.state != StateRefreshing {
		return user.User{}, false
	}
	return s.sess.User, true
}

// HasRole reports whether the current user holds any of the given roles.
func (s *Service) HasRole(roles ...string) bool {
	usr, ok := s.CurrentUser()
	return ok && usr.HasAnyRole(roles...)
}

// AccessToken implements api.TokenSource.
func (s *Service) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.AccessToken
}

// SessionID returns the server-issued session identifier.
func (s *Service) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sess.SessionID
}

// Login validates and submits credentials. On success the session is
// established, persisted, and the refresh timer armed.
func (s *Service) Login(ctx context.Context, form user.LoginForm) (user.User, error) {
	if err := form.Validate(); err != nil {
		return user.User{}, err
	}
	if s.limiter != nil {
		if allowed, retryIn := s.limiter.Check(form.Email); !allowed {
			mins := int(retryIn.Minutes()) + 1
			return user.User{}, core.NewValidationError(
				fmt.Errorf("too many failed attempts, try again in %d min", mins))
		}
	}

	s.setState(StateAuthenticating)
	var resp authResponse
	err := s.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   api.EndpointLogin,
		Body: map[string]interface{}{
			"email":       form.Email,
			"password":    form.Password,
			"fingerprint": s.installID(),
		},
	}, &resp)
	if err != nil {
		s.setState(StateAnonymous)
		if s.limiter != nil && isCredentialError(err) {
			s.limiter.RecordFailure(form.Email)
		}
		return user.User{}, err
	}
	if s.limiter != nil {
		s.limiter.RecordSuccess(form.Email)
	}
	s.establish(ctx, resp.Data)
	s.bus.Publish(event.Login{UserID: resp.Data.User.ID, Email: resp.Data.User.Email})
	return resp.Data.User, nil
}

// Register creates an account and establishes the session the server
// returns.
func (s *Service) Register(ctx context.Context, form user.RegisterForm) (user.User, error) {
	if err := form.Validate(); err != nil {
		return user.User{}, err
	}
	s.setState(StateAuthenticating)
	var resp authResponse
	err := s.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   api.EndpointRegister,
		Body: map[string]interface{}{
			"name":        form.Name,
			"email":       form.Email,
			"password":    form.Password,
			"fingerprint": s.installID(),
		},
	}, &resp)
	if err != nil {
		s.setState(StateAnonymous)
		return user.User{}, err
	}
	s.establish(ctx, resp.Data)
	s.bus.Publish(event.Login{UserID: resp.Data.User.ID, Email: resp.Data.User.Email})
	return resp.Data.User, nil
}

// Logout tells the server best-effort, then clears all local session
// state.
func (s *Service) Logout(ctx context.Context) {
	_ = s.api.Post(ctx, api.EndpointLogout, nil, nil)
	s.teardown(StateAnonymous)
	s.bus.Publish(event.Logout{})
}

// ForgotPassword requests a reset email. The server's response is
// intentionally the same whether the account exists or not.
func (s *Service) ForgotPassword(ctx context.Context, form user.ForgotPasswordForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return s.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   api.EndpointForgotPassword,
		Body:   map[string]interface{}{"email": form.Email},
	}, nil)
}

// ResetPassword consumes a reset token.
func (s *Service) ResetPassword(ctx context.Context, form user.ResetPasswordForm) error {
	if err := form.Validate(); err != nil {
		return err
	}
	return s.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   api.EndpointResetPassword,
		Body:   map[string]interface{}{"token": form.Token, "password": form.Password},
	}, nil)
}

// Restore rebuilds the session from the store at startup. A persisted
// token is validated against the server before the session is trusted;
// validation failures clear local state silently.
func (s *Service) Restore(ctx context.Context) bool {
	sess, ok := s.loadPersisted()
	if !ok {
		return false
	}
	s.mu.Lock()
	s.sess = sess
	s.state = StateAuthenticated
	s.mu.Unlock()

	if err := s.CheckSession(ctx); err != nil {
		s.teardown(StateAnonymous)
		return false
	}
	s.startWatch(ctx)
	return true
}

// CheckSession validates the current session server-side and refreshes
// the cached user and expiry from the response.
func (s *Service) CheckSession(ctx context.Context) error {
	if !s.Authenticated() {
		return ErrNotAuthenticated
	}
	var resp checkSessionResponse
	if err := s.api.Get(ctx, api.EndpointCheckSession, &resp); err != nil {
		return err
	}
	s.mu.Lock()
	s.sess.User = resp.Data.User
	if resp.Data.SessionID != "" {
		s.sess.SessionID = resp.Data.SessionID
	}
	if resp.Data.ExpiresIn > 0 {
		s.sess.ExpiresAt = s.nowFunc().Add(time.Duration(resp.Data.ExpiresIn) * time.Second)
		s.armRefreshLocked(time.Duration(resp.Data.ExpiresIn) * time.Second)
	}
	s.mu.Unlock()
	s.persist()
	return nil
}

// Refresh exchanges the refresh token for a new token pair. Concurrent
// callers coalesce onto a single in-flight exchange.
func (s *Service) Refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateRefreshing {
		// someone else is already refreshing; wait for them to finish.
		s.mu.Unlock()
		return s.waitRefresh(ctx)
	}
	if s.state != StateAuthenticated || s.sess.RefreshToken == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	refreshToken := s.sess.RefreshToken
	s.state = StateRefreshing
	s.mu.Unlock()

	var resp authResponse
	err := s.api.Do(ctx, api.Request{
		Method: http.MethodPost,
		Path:   api.EndpointRefresh,
		Body:   map[string]interface{}{"refresh_token": refreshToken},
	}, &resp)
	if err != nil {
		s.log.Warn("token refresh failed", err)
		s.bus.Publish(event.SessionExpired{})
		return err
	}

	s.mu.Lock()
	s.sess.AccessToken = resp.Data.AccessToken
	if resp.Data.RefreshToken != "" {
		s.sess.RefreshToken = resp.Data.RefreshToken
	}
	if resp.Data.SessionID != "" {
		s.sess.SessionID = resp.Data.SessionID
	}
	s.sess.ExpiresAt = s.nowFunc().Add(time.Duration(resp.Data.ExpiresIn) * time.Second)
	s.state = StateAuthenticated
	s.armRefreshLocked(time.Duration(resp.Data.ExpiresIn) * time.Second)
	s.mu.Unlock()
	s.persist()
	return nil
}

// Close releases timers and the push channel without logging out.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopWatchLocked()
}

// TokenClaims decodes the access token's claims without verifying the
// signature; the server remains the authority, this is display-only.
func (s *Service) TokenClaims() (jwt.MapClaims, error) {
	tok := s.AccessToken()
	if tok == "" {
		return nil, ErrNotAuthenticated
	}
	return decodeClaims(tok)
}

func decodeClaims(tok string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	if _, _, err := new(jwt.Parser).ParseUnverified(tok, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// ---------------------------------------------------------------------

func (s *Service) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Service) establish(ctx context.Context, p authPayload) {
	expiresIn := time.Duration(p.ExpiresIn) * time.Second
	s.mu.Lock()
	s.sess = Session{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		ExpiresAt:    s.nowFunc().Add(expiresIn),
		SessionID:    p.SessionID,
		User:         p.User,
	}
	s.state = StateAuthenticated
	s.armRefreshLocked(expiresIn)
	s.mu.Unlock()
	s.persist()
	s.startWatch(ctx)
}

// armRefreshLocked schedules a proactive refresh at expiry minus the
// configured threshold. Callers hold s.mu.
func (s *Service) armRefreshLocked(expiresIn time.Duration) {
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
	}
	d := expiresIn - s.conf.TokenRefreshThreshold
	if d < 0 {
		d = 0
	}
	s.refreshTimer = s.timerFunc(d, func() {
		if err := s.Refresh(context.Background()); err != nil {
			s.log.Warn("scheduled refresh failed", err)
		}
	})
}

// startWatch opens the push channel for session invalidation, falling
// back to polling when the channel cannot be established or is later
// lost.
func (s *Service) startWatch(ctx context.Context) {
	s.mu.Lock()
	s.stopWatchMonitorLocked()
	sessionID := s.sess.SessionID
	s.mu.Unlock()

	if s.monitor == nil || sessionID == "" {
		s.startPolling()
		return
	}
	mctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.monitorCtx = cancel
	s.mu.Unlock()

	err := s.monitor.Start(mctx, sessionID, s.handleSignal, s.startPolling)
	if err != nil {
		s.log.Warn("push channel unavailable, polling instead", err)
		s.startPolling()
	}
}

func (s *Service) handleSignal(sig Signal) {
	switch sig {
	case SignalTerminated:
		s.bus.Publish(event.SessionConflict{})
	case SignalExpired:
		s.bus.Publish(event.SessionExpired{})
	}
}

func (s *Service) startPolling() {
	s.mu.Lock()
	if s.pollStop != nil {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.pollStop = stop
	s.mu.Unlock()

	go func() {
		ticker := time.NewTicker(s.conf.SessionCheckInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if !s.Authenticated() {
					return
				}
				// invalidation surfaces through the events the API
				// client publishes on 401/409.
				_ = s.CheckSession(context.Background())
			}
		}
	}()
}

func (s *Service) stopWatchMonitorLocked() {
	if s.monitorCtx != nil {
		s.monitorCtx()
		s.monitorCtx = nil
	}
	if s.monitor != nil {
		s.monitor.Stop()
	}
}

func (s *Service) stopWatchLocked() {
	s.stopWatchMonitorLocked()
	if s.pollStop != nil {
		close(s.pollStop)
		s.pollStop = nil
	}
	if s.refreshTimer != nil {
		s.refreshTimer.Stop()
		s.refreshTimer = nil
	}
}

// teardown clears all session state. Idempotent; the first caller wins.
func (s *Service) teardown(final State) {
	s.mu.Lock()
	if s.state == StateAnonymous || s.state == final {
		s.mu.Unlock()
		return
	}
	s.stopWatchLocked()
	s.sess = Session{}
	s.state = final
	s.mu.Unlock()

	for _, key := range []string{
		kv.KeyAccessToken, kv.KeyRefreshToken, kv.KeyTokenExpiry, kv.KeySessionID, kv.KeyUser,
	} {
		_ = s.store.Delete(key)
	}
}

func (s *Service) persist() {
	s.mu.Lock()
	sess := s.sess
	s.mu.Unlock()
	if sess.AccessToken == "" {
		return
	}
	_ = s.store.SetSecure(kv.KeyAccessToken, sess.AccessToken)
	_ = s.store.SetSecure(kv.KeyRefreshToken, sess.RefreshToken)
	_ = s.store.Set(kv.KeyTokenExpiry, sess.ExpiresAt.UnixNano()/int64(time.Millisecond))
	_ = s.store.Set(kv.KeySessionID, sess.SessionID)
	_ = s.store.SetSecure(kv.KeyUser, sess.User)
}

func (s *Service) loadPersisted() (Session, bool) {
	var sess Session
	if err := s.store.GetSecure(kv.KeyAccessToken, &sess.AccessToken); err != nil || sess.AccessToken == "" {
		return Session{}, false
	}
	_ = s.store.GetSecure(kv.KeyRefreshToken, &sess.RefreshToken)
	_ = s.store.Get(kv.KeySessionID, &sess.SessionID)
	var ms int64
	if err := s.store.Get(kv.KeyTokenExpiry, &ms); err == nil && ms > 0 {
		sess.ExpiresAt = time.Unix(0, ms*int64(time.Millisecond))
	} else if claims, cerr := decodeClaims(sess.AccessToken); cerr == nil {
		// no persisted expiry; fall back to the token's own exp claim
		if exp, ok := claims["exp"].(float64); ok {
			sess.ExpiresAt = time.Unix(int64(exp), 0)
		}
	}
	_ = s.store.GetSecure(kv.KeyUser, &sess.User)
	return sess, true
}

// installID returns a stable per-install identifier, minted on first use.
func (s *Service) installID() string {
	var id string
	if err := s.store.Get(kv.KeyInstallID, &id); err == nil && id != "" {
		return id
	}
	id = uuid.New().String()
	_ = s.store.Set(kv.KeyInstallID, id)
	return id
}

// waitRefresh blocks until an in-flight refresh settles.
func (s *Service) waitRefresh(ctx context.Context) error {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.mu.Lock()
			st := s.state
			s.mu.Unlock()
			switch st {
			case StateAuthenticated:
				return nil
			case StateRefreshing:
				continue
			default:
				return ErrNotAuthenticated
			}
		}
	}
}

func isCredentialError(err error) bool {
	if errors.Is(err, api.ErrUnauthorized) {
		return true
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusBadRequest || apiErr.Status == http.StatusUnauthorized
	}
	return false
}
