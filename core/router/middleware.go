package router

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/trezcool/darasa/core/ratelimit"
	"github.com/trezcool/darasa/services/api"
)

// Sessions is the slice of the session service the middleware gates on.
type Sessions interface {
	Authenticated() bool
	HasRole(roles ...string) bool
	CheckSession(ctx context.Context) error
}

// sessionCheckThrottle caps how often the validation middleware hits
// the server; navigations inside the window trust the local state.
const sessionCheckThrottle = 30 * time.Second

// NavRateLimit denies navigations past the per-minute budget. The
// current page stays; nothing renders.
func NavRateLimit(window *ratelimit.Window) Middleware {
	return func(_ context.Context, _ *Navigation) error {
		if !window.Allow() {
			return api.ErrRateLimited
		}
		window.Record()
		return nil
	}
}

// SessionCheck revalidates the session server-side on routes that
// require auth, at most once per throttle window. Transient failures
// fail open; a check that leaves
// the session torn down (the API client publishes the session-fatal
// events, teardown runs before the call returns) denies the
// navigation so the login landing set by those events survives.
func SessionCheck(sessions Sessions) Middleware {
	var (
		mu        sync.Mutex
		lastCheck time.Time
	)
	return func(ctx context.Context, nav *Navigation) error {
		if nav.Route == nil || !nav.Route.Meta.RequiresAuth {
			return nil
		}
		if !sessions.Authenticated() {
			return nil
		}
		mu.Lock()
		due := time.Since(lastCheck) >= sessionCheckThrottle
		if due {
			lastCheck = time.Now()
		}
		mu.Unlock()
		if !due {
			return nil
		}
		if err := sessions.CheckSession(ctx); err != nil && !sessions.Authenticated() {
			return api.ErrUnauthorized
		}
		return nil
	}
}

// AccessFunc reports whether the current user may open a course's
// content. Errors count as access so the page can degrade on its own.
type AccessFunc func(ctx context.Context, courseID string) bool

// AuthGate enforces the matched route's access flags: guests off
// authenticated-only pages (with the target preserved for after
// login), authenticated users off guest-only pages, role checks, and
// the enrollment check on routes that name an AccessParam.
func AuthGate(sessions Sessions, access AccessFunc) Middleware {
	return func(ctx context.Context, nav *Navigation) error {
		if nav.Route == nil {
			return nil
		}
		meta := nav.Route.Meta
		authed := sessions.Authenticated()

		if meta.GuestOnly && authed {
			if target := nav.Query["redirect"]; target != "" {
				return &Redirect{To: target, Replace: true}
			}
			return &Redirect{To: "/dashboard", Replace: true}
		}
		if meta.RequiresAuth && !authed {
			return &Redirect{To: LoginRedirect(nav.Path), Replace: true}
		}
		if len(meta.Roles) > 0 && !sessions.HasRole(meta.Roles...) {
			return &Redirect{To: "/dashboard", Replace: true}
		}
		if meta.AccessParam != "" && access != nil {
			if id := nav.Params[meta.AccessParam]; id != "" && !access(ctx, id) {
				return &Redirect{To: "/courses/" + id, Replace: true}
			}
		}
		return nil
	}
}

// LoginRedirect builds the login path that returns to target afterwards.
func LoginRedirect(target string) string {
	return "/login?redirect=" + url.QueryEscape(target)
}

// LoginConflictPath is where a superseded session lands.
const LoginConflictPath = "/login?reason=conflict"

// LoginExpiredPath is where an expired session lands.
const LoginExpiredPath = "/login?session=expired"
