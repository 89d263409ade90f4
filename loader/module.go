package loader

import (
	"context"
	"net/url"

	"github.com/simukka/toybox/audio"
	"github.com/simukka/toybox/capability"
	"github.com/simukka/toybox/render"
	"github.com/simukka/toybox/view"
)

// StartArgs is passed to a toy's start function.
type StartArgs struct {
	Container    view.Container
	Slug         string
	Renderers    *render.Pool
	Audio        *audio.Pool
	Capabilities capability.Snapshot
}

// StartFunc mounts a toy and returns its disposable: a func, a value with a
// Dispose method, or any other non-scalar value.
type StartFunc func(ctx context.Context, args StartArgs) (any, error)

// Module is an imported toy module.
type Module interface {
	// Export returns the named export, or nil.
	Export(name string) any
}

// Importer loads modules by URL.
type Importer interface {
	Import(ctx context.Context, url string) (Module, error)
}

// Exports is a Module backed by a map, used for modules built in Go.
type Exports map[string]any

// Export implements Module.
func (e Exports) Export(name string) any { return e[name] }

// findStart locates start either as a direct export or as default.start.
func findStart(m Module) (StartFunc, bool) {
	if m == nil {
		return nil, false
	}
	if fn, ok := asStart(m.Export("start")); ok {
		return fn, true
	}
	switch def := m.Export("default").(type) {
	case Module:
		return asStart(def.Export("start"))
	case map[string]any:
		return asStart(def["start"])
	}
	return nil, false
}

func asStart(v any) (StartFunc, bool) {
	switch fn := v.(type) {
	case StartFunc:
		return fn, fn != nil
	case func(context.Context, StartArgs) (any, error):
		return fn, fn != nil
	}
	return nil, false
}

// Navigator performs full page navigations for page-kind toys.
type Navigator interface {
	Navigate(href string)
	// Location is the page URL; nil when unknown.
	Location() *url.URL
}
