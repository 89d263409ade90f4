package router

import (
	"net/url"
	"testing"
)

type fakeHistory struct {
	loc       *url.URL
	pushes    []string
	listeners map[int]func()
	nextID    int
}

func newHistory(raw string) *fakeHistory {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	return &fakeHistory{loc: u, listeners: map[int]func(){}}
}

func (h *fakeHistory) Location() *url.URL {
	u := *h.loc
	return &u
}

func (h *fakeHistory) Push(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	h.loc = u
	h.pushes = append(h.pushes, raw)
}

func (h *fakeHistory) OnPopState(fn func()) func() {
	id := h.nextID
	h.nextID++
	h.listeners[id] = fn
	return func() { delete(h.listeners, id) }
}

// back simulates a browser back navigation to raw.
func (h *fakeHistory) back(raw string) {
	u, _ := url.Parse(raw)
	h.loc = u
	for _, fn := range h.listeners {
		fn()
	}
}

func TestCurrentRoute(t *testing.T) {
	tests := []struct {
		name string
		url  string
		want Route
	}{
		{"library root", "https://toys.test/", Route{View: ViewLibrary}},
		{"toy param", "https://toys.test/?toy=spiral", Route{View: ViewToy, Slug: "spiral"}},
		{"blank param", "https://toys.test/?toy=%20", Route{View: ViewLibrary}},
		{"toy page without slug", "https://toys.test/toy.html", Route{View: ViewToy}},
		{"toy page with slug", "https://toys.test/toy.html?toy=grid", Route{View: ViewToy, Slug: "grid"}},
		{"other params ignored", "https://toys.test/?utm=x", Route{View: ViewLibrary}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New(newHistory(tt.url), Options{})
			if got := r.CurrentRoute(); got != tt.want {
				t.Errorf("CurrentRoute() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestPushToy_SkipsUnchangedURL(t *testing.T) {
	h := newHistory("https://toys.test/")
	r := New(h, Options{})

	r.PushToy("spiral")
	r.PushToy("spiral")
	if len(h.pushes) != 1 {
		t.Fatalf("Expected 1 push, got %d: %v", len(h.pushes), h.pushes)
	}
	if h.pushes[0] != "https://toys.test/?toy=spiral" {
		t.Errorf("Unexpected pushed URL %q", h.pushes[0])
	}
	if r.CurrentSlug() != "spiral" {
		t.Errorf("Expected current slug spiral, got %q", r.CurrentSlug())
	}

	r.PushToy("grid")
	if len(h.pushes) != 2 || r.CurrentSlug() != "grid" {
		t.Errorf("Expected a second push for a new slug, got %v", h.pushes)
	}
}

func TestGoToLibrary(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		opts    Options
		want    string
		changed bool
	}{
		{"strips param", "https://toys.test/?toy=spiral", Options{}, "https://toys.test/", true},
		{"keeps other params", "https://toys.test/?toy=spiral&debug=1", Options{}, "https://toys.test/?debug=1", true},
		{"already library", "https://toys.test/", Options{}, "https://toys.test/", false},
		{"leaves toy page", "https://toys.test/toy.html?toy=grid", Options{}, "https://toys.test/", true},
		{"relative library path", "https://toys.test/app/toy.html?toy=a", Options{LibraryPath: "./"}, "https://toys.test/app/", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHistory(tt.url)
			r := New(h, tt.opts)
			if href := r.LibraryHref(); href != tt.want {
				t.Errorf("LibraryHref() = %q, want %q", href, tt.want)
			}
			if changed := r.GoToLibrary(); changed != tt.changed {
				t.Errorf("GoToLibrary() = %v, want %v", changed, tt.changed)
			}
			if tt.changed && (len(h.pushes) != 1 || h.pushes[0] != tt.want) {
				t.Errorf("Expected single push of %q, got %v", tt.want, h.pushes)
			}
			if !tt.changed && len(h.pushes) != 0 {
				t.Errorf("Expected no push, got %v", h.pushes)
			}
		})
	}
}

func TestListen_SingleSubscription(t *testing.T) {
	h := newHistory("https://toys.test/?toy=a")
	r := New(h, Options{})

	var first, second []Route
	r.Listen(func(rt Route) { first = append(first, rt) })
	unsubscribe := r.Listen(func(rt Route) { second = append(second, rt) })

	if len(h.listeners) != 1 {
		t.Fatalf("Expected exactly one popstate listener, got %d", len(h.listeners))
	}

	h.back("https://toys.test/")
	if len(first) != 0 {
		t.Errorf("Replaced callback should not fire, got %v", first)
	}
	if len(second) != 1 || second[0] != (Route{View: ViewLibrary}) {
		t.Errorf("Expected library route, got %v", second)
	}

	unsubscribe()
	if len(h.listeners) != 0 {
		t.Errorf("Expected listener removed, got %d", len(h.listeners))
	}
	h.back("https://toys.test/?toy=b")
	if len(second) != 1 {
		t.Errorf("Callback fired after unsubscribe")
	}
}

func TestCustomQueryParam(t *testing.T) {
	h := newHistory("https://toys.test/?exp=waves")
	r := New(h, Options{QueryParam: "exp"})
	if r.CurrentSlug() != "waves" {
		t.Errorf("Expected slug from custom param, got %q", r.CurrentSlug())
	}
	r.PushToy("tunnel")
	if h.loc.Query().Get("exp") != "tunnel" {
		t.Errorf("Expected custom param to be written, got %q", h.loc.String())
	}
}
