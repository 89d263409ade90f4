//go:build js
// +build js

package web

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gopherjs/gopherjs/js"

	"github.com/simukka/toybox/audio"
	"github.com/simukka/toybox/loader"
	"github.com/simukka/toybox/render"
)

// dynamicImport wraps import() so it can be called from Go.
var dynamicImport = js.Global.Get("Function").New("u", "return import(u);")

// Importer implements loader.Importer with dynamic import().
type Importer struct{}

var _ loader.Importer = Importer{}

// Import loads the ES module at url.
func (Importer) Import(ctx context.Context, url string) (loader.Module, error) {
	p, err := safeCall(func() *js.Object { return dynamicImport.Invoke(url) })
	if err != nil {
		return nil, err
	}
	ns, err := await(ctx, p)
	if err != nil {
		return nil, err
	}
	return &jsModule{obj: ns}, nil
}

// jsModule adapts a module namespace object. Function exports become
// loader.StartFunc values; object exports become nested modules.
type jsModule struct {
	obj *js.Object
}

func (m *jsModule) Export(name string) any {
	v := m.obj.Get(name)
	switch {
	case nullish(v):
		return nil
	case isFunction(v):
		return loader.StartFunc(func(ctx context.Context, args loader.StartArgs) (any, error) {
			return callStart(ctx, v, args)
		})
	default:
		return &jsModule{obj: v}
	}
}

// callStart calls a JS start function with a plain options object and
// converts whatever it returns, awaited if it is a promise, into a value
// lifecycle.Normalize understands.
func callStart(ctx context.Context, fn *js.Object, args loader.StartArgs) (any, error) {
	opts := map[string]interface{}{
		"slug":            args.Slug,
		"capabilities":    toJS(args.Capabilities),
		"acquireRenderer": acquireRendererFunc(ctx, args),
		"acquireAudio":    acquireAudioFunc(ctx, args.Audio),
	}
	if c, ok := args.Container.(*Container); ok {
		opts["container"] = c.el
	}
	result, err := safeCall(func() *js.Object { return fn.Invoke(opts) })
	if err != nil {
		return nil, err
	}
	if thenable(result) {
		if result, err = await(ctx, result); err != nil {
			return nil, err
		}
	}
	return disposableOf(result), nil
}

// jsDisposable calls a JS dispose or destroy method.
type jsDisposable struct {
	obj    *js.Object
	method string
}

func (d *jsDisposable) Dispose() error {
	_, err := safeCall(func() *js.Object { return d.obj.Call(d.method) })
	return err
}

func disposableOf(v *js.Object) any {
	if nullish(v) {
		return nil
	}
	if isFunction(v) {
		return func() error {
			_, err := safeCall(func() *js.Object { return v.Invoke() })
			return err
		}
	}
	for _, method := range []string{"dispose", "destroy"} {
		if isFunction(v.Get(method)) {
			return &jsDisposable{obj: v, method: method}
		}
	}
	return v
}

// toJS converts v to a plain JS object through JSON.
func toJS(v interface{}) *js.Object {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return js.Global.Get("JSON").Call("parse", string(data))
}

func acquireRendererFunc(ctx context.Context, args loader.StartArgs) func(*js.Object) *js.Object {
	return func(o *js.Object) *js.Object {
		return promise(func() (interface{}, error) {
			if args.Renderers == nil {
				return nil, render.ErrNoBackend
			}
			host, ok := args.Container.(render.Host)
			if !ok {
				return nil, fmt.Errorf("container %T cannot host a canvas", args.Container)
			}
			opts := render.CanvasOptions{Antialias: true}
			if !nullish(o) {
				opts.Antialias = !has(o, "antialias") || o.Get("antialias").Bool()
				opts.Alpha = has(o, "alpha") && o.Get("alpha").Bool()
				if has(o, "maxPixelRatio") {
					opts.Settings.MaxPixelRatio = o.Get("maxPixelRatio").Float()
				}
				if has(o, "renderScale") {
					opts.Settings.RenderScale = o.Get("renderScale").Float()
				}
				if has(o, "exposure") {
					opts.Settings.Exposure = o.Get("exposure").Float()
				}
			}
			h, err := args.Renderers.Acquire(ctx, host, opts)
			if err != nil {
				return nil, err
			}
			out := map[string]interface{}{
				"backend": string(h.Backend),
				"release": h.Release,
			}
			if r, ok := h.Renderer.(*jsRenderer); ok {
				out["renderer"] = r.obj
				out["canvas"] = r.canvas.el
			}
			return out, nil
		})
	}
}

func acquireAudioFunc(ctx context.Context, pool *audio.Pool) func(*js.Object) *js.Object {
	return func(o *js.Object) *js.Object {
		return promise(func() (interface{}, error) {
			if pool == nil {
				return nil, audio.ErrUnsupported
			}
			var opts audio.Options
			if !nullish(o) {
				if has(o, "source") {
					opts.Source = audio.Source(o.Get("source").String())
				}
				if has(o, "fftSize") {
					opts.FFTSize = o.Get("fftSize").Int()
				}
				if has(o, "listener") {
					opts.Listener = o.Get("listener")
				}
			}
			h, err := pool.Acquire(ctx, opts)
			if err != nil {
				return nil, err
			}
			out := map[string]interface{}{
				"source":   string(h.Source),
				"listener": h.Listener,
				"release":  h.Release,
			}
			if a, ok := h.Analyser.(*analyser); ok {
				out["analyser"] = a.obj
			}
			if s, ok := h.Stream.(*mediaStream); ok {
				out["stream"] = s.obj
			}
			return out, nil
		})
	}
}
