// Package router resolves paths to pages and runs every navigation
// through an ordered middleware chain. Routes are matched exact-first;
// among parameterized patterns the first registered wins.
package router

import (
	"context"
	"net/url"
	"sync"

	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/core/event"
	"github.com/trezcool/darasa/core/view"
)

// maxRedirects bounds middleware redirect chains; anything deeper is a
// configuration bug.
const maxRedirects = 10

// Navigation is the in-flight state handed to each middleware.
type Navigation struct {
	Path    string
	Route   *Route
	Params  map[string]string
	Query   map[string]string
	Replace bool
}

// Redirect short-circuits the chain and sends the navigation elsewhere.
type Redirect struct {
	To      string
	Replace bool
}

func (r *Redirect) Error() string { return "redirect to " + r.To }

// Middleware inspects a navigation before its page renders. Returning a
// *Redirect reroutes; any other error denies the navigation and leaves
// the current page in place.
type Middleware func(ctx context.Context, nav *Navigation) error

// Current is the rendered state after a completed navigation.
type Current struct {
	Path   string
	Route  *Route
	Params map[string]string
	Query  map[string]string
	Title  string
	Node   view.Node
}

// Options configures a Router. Bus is required; History defaults to an
// in-memory stack.
type Options struct {
	Conf    *core.Config
	Bus     *event.Bus
	Logger  core.Logger
	History History
}

type Router struct {
	conf    *core.Config
	bus     *event.Bus
	log     core.Logger
	history History

	mu         sync.Mutex
	literals   map[string]*Route
	ordered    []*Route // parameterized, registration order
	middleware []Middleware
	notFound   view.Page
	errorPage  func(error) view.Page
	inited     map[*Route]bool
	current    *Current
}

func New(opts Options) *Router {
	r := &Router{
		conf:     opts.Conf,
		bus:      opts.Bus,
		log:      opts.Logger,
		history:  opts.History,
		literals: make(map[string]*Route),
		inited:   make(map[*Route]bool),
	}
	if r.history == nil {
		r.history = NewMemoryHistory()
	}
	r.notFound = view.Func{
		PageTitle: "Not Found",
		RenderFn: func(context.Context, map[string]string, map[string]string) (view.Node, error) {
			return view.El("div", map[string]string{"class": "error-page"},
				view.El("h1", nil, view.Text("404")),
				view.El("p", nil, view.Text("This page does not exist."))), nil
		},
	}
	r.errorPage = func(err error) view.Page {
		return view.Func{
			PageTitle: "Error",
			RenderFn: func(context.Context, map[string]string, map[string]string) (view.Node, error) {
				return view.El("div", map[string]string{"class": "error-page"},
					view.El("h1", nil, view.Text("Something went wrong")),
					view.El("p", nil, view.Text(err.Error()))), nil
			},
		}
	}
	return r
}

// Handle registers a pattern. Parameterized routes keep registration
// order; when two patterns could match the same path the earlier
// registration wins.
func (r *Router) Handle(pattern string, page view.Page, meta Meta) {
	route := &Route{Pattern: pattern, Page: page, Meta: meta}
	route.segments, route.literal = compile(pattern)

	r.mu.Lock()
	defer r.mu.Unlock()
	if route.literal {
		r.literals[normalize(pattern)] = route
		return
	}
	r.ordered = append(r.ordered, route)
}

// Use appends a middleware; the chain runs in registration order.
func (r *Router) Use(mw Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.middleware = append(r.middleware, mw)
}

// NotFound overrides the fallback page.
func (r *Router) NotFound(page view.Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notFound = page
}

// ErrorPage overrides the page shown when a render fails.
func (r *Router) ErrorPage(fn func(error) view.Page) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errorPage = fn
}

// Navigate resolves and renders rawPath. Middleware redirects are
// followed; a denied navigation returns the denial and keeps the
// current page.
func (r *Router) Navigate(ctx context.Context, rawPath string, replace bool) error {
	return r.navigate(ctx, rawPath, replace, 0)
}

// Back pops the history stack and re-renders the previous path.
func (r *Router) Back(ctx context.Context) error {
	prev, ok := r.history.Back()
	if !ok {
		return nil
	}
	return r.navigate(ctx, prev, true, 0)
}

// CurrentRoute returns the state of the last completed navigation.
func (r *Router) CurrentRoute() (Current, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Current{}, false
	}
	return *r.current, true
}

func (r *Router) navigate(ctx context.Context, rawPath string, replace bool, depth int) error {
	if depth > maxRedirects {
		return errors.Errorf("router: redirect loop at %s", rawPath)
	}

	path := normalize(rawPath)
	query := parseQuery(rawPath)
	route, params := r.resolve(path)

	nav := &Navigation{Path: path, Route: route, Params: params, Query: query, Replace: replace}
	// unresolved paths render not-found directly; middleware only gates
	// real routes
	if route != nil {
		for _, mw := range r.chain() {
			if err := mw(ctx, nav); err != nil {
				var redir *Redirect
				if errors.As(err, &redir) {
					return r.navigate(ctx, redir.To, redir.Replace, depth+1)
				}
				r.log.Debug("navigation denied", rawPath, err)
				return err
			}
		}
	}

	page := r.notFound
	if route != nil {
		page = route.Page
	}
	node, title, err := r.render(ctx, route, page, nav)
	if err != nil {
		r.log.Error("page render failed", err)
		page = r.errorPage(err)
		node, _ = page.Render(ctx, nav.Params, nav.Query)
		title = page.Title()
	}

	if replace {
		r.history.Replace(rawPath)
	} else {
		r.history.Push(rawPath)
	}

	r.mu.Lock()
	r.current = &Current{
		Path:   path,
		Route:  route,
		Params: nav.Params,
		Query:  nav.Query,
		Title:  title,
		Node:   node,
	}
	r.mu.Unlock()

	r.bus.Publish(event.RouteChanged{Path: path, Params: nav.Params, Query: nav.Query})
	r.bus.Publish(event.PageLoaded{Path: path, Title: title})
	return nil
}

// resolve looks the path up: exact literal match first, then the
// parameterized table in registration order.
func (r *Router) resolve(path string) (*Route, map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if route, ok := r.literals[path]; ok {
		return route, nil
	}
	for _, route := range r.ordered {
		if params, ok := route.match(path); ok {
			return route, params
		}
	}
	return nil, nil
}

func (r *Router) render(ctx context.Context, route *Route, page view.Page, nav *Navigation) (node view.Node, title string, err error) {
	// a panicking page degrades to the error view, never an empty frame
	defer func() {
		if rec := recover(); rec != nil {
			node, title = view.Node{}, ""
			err = errors.Errorf("render panic: %v", rec)
		}
	}()

	if initer, ok := page.(view.Initer); ok && route != nil {
		r.mu.Lock()
		ran := r.inited[route]
		r.mu.Unlock()
		if !ran {
			if err := initer.Init(ctx); err != nil {
				return view.Node{}, "", err
			}
			r.mu.Lock()
			r.inited[route] = true
			r.mu.Unlock()
		}
	}
	node, err = page.Render(ctx, nav.Params, nav.Query)
	if err != nil {
		return view.Node{}, "", err
	}
	title = page.Title()
	if route != nil && route.Meta.Title != "" {
		title = route.Meta.Title
	}
	return node, title, nil
}

func (r *Router) chain() []Middleware {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Middleware(nil), r.middleware...)
}

func parseQuery(rawPath string) map[string]string {
	u, err := url.Parse(rawPath)
	if err != nil || u.RawQuery == "" {
		return nil
	}
	values, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil
	}
	query := make(map[string]string, len(values))
	for k, vs := range values {
		if len(vs) > 0 {
			query[k] = vs[0]
		}
	}
	return query
}
