package main

import (
	"context"
	"net/http"
	"time"

	"github.com/trezcool/darasa/apps/client/pages"
	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/core/progress"
	"github.com/trezcool/darasa/core/ratelimit"
	"github.com/trezcool/darasa/core/router"
	"github.com/trezcool/darasa/core/session"
	"github.com/trezcool/darasa/core/user"
	"github.com/trezcool/darasa/services/analytics"
	"github.com/trezcool/darasa/services/api"
	"github.com/trezcool/darasa/services/push"
	"github.com/trezcool/darasa/storage/kv"
)

// tokenFunc defers the token lookup so the push monitor can be built
// before the session service that feeds it.
type tokenFunc func() string

func (f tokenFunc) AccessToken() string { return f() }

type app struct {
	conf     *core.Config
	log      core.Logger
	bus      *event.Bus
	store    kv.Store
	api      *api.Client
	sessions *session.Service
	users    *user.Service
	courses  *course.Service
	progress *progress.Service
	tracker  *analytics.Tracker
	router   *router.Router
}

func newApp(conf *core.Config, store kv.Store, httpClient *http.Client, log core.Logger) *app {
	bus := event.NewBus(log)
	client := api.NewClient(&api.Options{
		Conf:       conf,
		Bus:        bus,
		Logger:     log,
		HTTPClient: httpClient,
	})

	var sessions *session.Service
	monitor := push.NewSessionMonitor(conf, log, tokenFunc(func() string {
		return sessions.AccessToken()
	}))
	sessions = session.NewService(session.Options{
		Conf:    conf,
		Bus:     bus,
		Store:   store,
		API:     client,
		Monitor: monitor,
		Limiter: ratelimit.NewLoginLimiter(store, conf.MaxLoginAttempts, conf.LoginLockoutDuration),
		Logger:  log,
	})

	a := &app{
		conf:     conf,
		log:      log,
		bus:      bus,
		store:    store,
		api:      client,
		sessions: sessions,
		users:    user.NewService(user.Options{Conf: conf, Bus: bus, Store: store, API: client, Logger: log}),
		courses:  course.NewService(course.Options{Conf: conf, Bus: bus, API: client, Logger: log}),
		progress: progress.NewService(progress.Options{Conf: conf, Bus: bus, Store: store, API: client, Logger: log}),
		tracker:  analytics.NewTracker(analytics.Options{Conf: conf, Bus: bus, API: client, Logger: log}),
	}

	a.router = router.New(router.Options{Conf: conf, Bus: bus, Logger: log})
	a.router.Use(router.NavRateLimit(ratelimit.NewWindow(conf.MaxNavigationsPerMinute, time.Minute)))
	a.router.Use(router.SessionCheck(sessions))
	a.router.Use(router.AuthGate(sessions, func(ctx context.Context, courseID string) bool {
		access, err := a.courses.CheckAccess(ctx, courseID)
		return err != nil || access.Allowed
	}))
	a.registerRoutes()

	// session-fatal events land on the login page with a reason flag
	bus.Subscribe(event.TopicSessionConflict, func(event.Event) {
		_ = a.router.Navigate(context.Background(), router.LoginConflictPath, true)
	})
	bus.Subscribe(event.TopicSessionExpired, func(event.Event) {
		_ = a.router.Navigate(context.Background(), router.LoginExpiredPath, true)
	})
	return a
}

func (a *app) registerRoutes() {
	p := &pages.Pages{
		Sessions: a.sessions,
		Users:    a.users,
		Courses:  a.courses,
		Progress: a.progress,
		Log:      a.log,
	}

	a.router.Handle("/", p.Home(), router.Meta{Title: a.conf.AppName})
	a.router.Handle("/login", p.Login(), router.Meta{Title: "Sign In", GuestOnly: true})
	a.router.Handle("/register", p.Register(), router.Meta{Title: "Create Account", GuestOnly: true})
	a.router.Handle("/forgot-password", p.ForgotPassword(), router.Meta{Title: "Forgot Password", GuestOnly: true})
	a.router.Handle("/courses", p.Catalog(), router.Meta{Title: "Courses"})
	a.router.Handle("/search", p.Catalog(), router.Meta{Title: "Search"})
	a.router.Handle("/courses/:id", p.CourseDetail(), router.Meta{})
	a.router.Handle("/courses/:cid/lessons/:lid", p.Lesson(), router.Meta{RequiresAuth: true, AccessParam: "cid"})
	a.router.Handle("/quiz/:id", p.Quiz(), router.Meta{RequiresAuth: true})
	a.router.Handle("/dashboard", p.Dashboard(), router.Meta{Title: "Dashboard", RequiresAuth: true})
	a.router.Handle("/my-courses", p.MyCourses(), router.Meta{Title: "My Courses", RequiresAuth: true})
	a.router.Handle("/profile", p.Profile(), router.Meta{Title: "Profile", RequiresAuth: true})
}

// start restores any persisted session and lands on the home page.
func (a *app) start(ctx context.Context) error {
	a.sessions.Restore(ctx)
	return a.router.Navigate(ctx, "/", false)
}

// shutdown flushes queues and releases everything, in dependency order.
func (a *app) shutdown() {
	a.progress.Close()
	a.tracker.Close()
	a.sessions.Close()
	if err := a.store.Close(); err != nil {
		a.log.Warn("store close failed", err)
	}
}
