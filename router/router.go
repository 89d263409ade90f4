// Package router maps the page URL to a library or toy route and owns every
// history push made by the app.
package router

import (
	"net/url"
	"path"
	"strings"
	"sync"
)

// View is the top-level screen a route selects.
type View string

const (
	ViewLibrary View = "library"
	ViewToy     View = "toy"
)

// Route is derived from the URL. A toy route may carry an empty slug.
type Route struct {
	View View
	Slug string
}

// History is the browser history as seen by the router.
type History interface {
	Location() *url.URL
	Push(url string)
	// OnPopState registers fn for back/forward navigation.
	OnPopState(fn func()) (remove func())
}

// Options tune the URL contract.
type Options struct {
	QueryParam  string
	LibraryPath string
	// ToyPage is a path suffix that denotes the standalone toy page.
	ToyPage string
}

// DefaultOptions match the production URL layout.
var DefaultOptions = Options{
	QueryParam:  "toy",
	LibraryPath: "/",
	ToyPage:     "/toy.html",
}

// Router is the sole reader and writer of routing state in the URL.
type Router struct {
	history History
	opts    Options

	mu       sync.Mutex
	onChange func(Route)
	remove   func()
}

// New creates a router over h. Zero option fields take DefaultOptions values.
func New(h History, opts Options) *Router {
	if opts.QueryParam == "" {
		opts.QueryParam = DefaultOptions.QueryParam
	}
	if opts.LibraryPath == "" {
		opts.LibraryPath = DefaultOptions.LibraryPath
	}
	if opts.ToyPage == "" {
		opts.ToyPage = DefaultOptions.ToyPage
	}
	return &Router{history: h, opts: opts}
}

// CurrentSlug returns the slug in the URL, or "" when none is set.
func (r *Router) CurrentSlug() string {
	return strings.TrimSpace(r.history.Location().Query().Get(r.opts.QueryParam))
}

// CurrentRoute computes the route from the current URL.
func (r *Router) CurrentRoute() Route {
	return r.routeFor(r.history.Location())
}

func (r *Router) routeFor(u *url.URL) Route {
	slug := strings.TrimSpace(u.Query().Get(r.opts.QueryParam))
	if slug != "" {
		return Route{View: ViewToy, Slug: slug}
	}
	if strings.HasSuffix(u.Path, r.opts.ToyPage) {
		return Route{View: ViewToy}
	}
	return Route{View: ViewLibrary}
}

// PushToy records slug in the URL. Nothing is pushed if the URL already names it.
func (r *Router) PushToy(slug string) {
	cur := r.history.Location()
	if cur.Query().Get(r.opts.QueryParam) == slug {
		return
	}
	next := *cur
	q := next.Query()
	q.Set(r.opts.QueryParam, slug)
	next.RawQuery = q.Encode()
	r.history.Push(next.String())
}

// GoToLibrary moves to the library entry point without the toy parameter.
// It returns false when the URL was already there.
func (r *Router) GoToLibrary() bool {
	cur := r.history.Location()
	next := r.libraryURL(cur)
	if next.String() == cur.String() {
		return false
	}
	r.history.Push(next.String())
	return true
}

// LibraryHref is the URL of the library for the current page.
func (r *Router) LibraryHref() string {
	return r.libraryURL(r.history.Location()).String()
}

func (r *Router) libraryURL(cur *url.URL) *url.URL {
	next := *cur
	q := next.Query()
	q.Del(r.opts.QueryParam)
	next.RawQuery = q.Encode()
	next.Fragment = ""
	next.Path = r.resolveLibraryPath(cur.Path)
	return &next
}

func (r *Router) resolveLibraryPath(current string) string {
	lib := r.opts.LibraryPath
	if strings.HasPrefix(lib, "/") {
		return lib
	}
	joined := path.Join(path.Dir(current), lib)
	if strings.HasSuffix(lib, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}

// Listen calls onChange with the recomputed route on every back/forward
// navigation. Only one popstate subscription exists; a second call replaces
// the callback.
func (r *Router) Listen(onChange func(Route)) (unsubscribe func()) {
	r.mu.Lock()
	r.onChange = onChange
	if r.remove == nil {
		r.remove = r.history.OnPopState(r.popState)
	}
	r.mu.Unlock()
	return r.unlisten
}

func (r *Router) popState() {
	r.mu.Lock()
	fn := r.onChange
	r.mu.Unlock()
	if fn != nil {
		fn(r.CurrentRoute())
	}
}

func (r *Router) unlisten() {
	r.mu.Lock()
	remove := r.remove
	r.remove = nil
	r.onChange = nil
	r.mu.Unlock()
	if remove != nil {
		remove()
	}
}
