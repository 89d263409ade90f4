//go:build js
// +build js

package web

import (
	"context"
	"fmt"
	"math"

	"github.com/gopherjs/gopherjs/js"

	"github.com/simukka/toybox/capability"
	"github.com/simukka/toybox/render"
)

// RendererHook is the global a page sets to build renderers in JS, e.g. with
// three.js. It is called with {backend, antialias, alpha} and returns a
// renderer, or a promise of one, exposing domElement or canvas.
const RendererHook = "toyboxCreateRenderer"

// RendererFactory implements render.Factory.
type RendererFactory struct{}

var _ render.Factory = RendererFactory{}

// NewRenderer builds a renderer through the page hook, or a bare canvas
// with a context for backend when no hook is installed.
func (RendererFactory) NewRenderer(ctx context.Context, backend capability.Backend, opts render.CanvasOptions) (render.Renderer, error) {
	hook := js.Global.Get(RendererHook)
	if !isFunction(hook) {
		return bareRenderer(backend, opts)
	}
	v, err := safeCall(func() *js.Object {
		return hook.Invoke(map[string]interface{}{
			"backend":   string(backend),
			"antialias": opts.Antialias,
			"alpha":     opts.Alpha,
		})
	})
	if err != nil {
		return nil, err
	}
	if thenable(v) {
		if v, err = await(ctx, v); err != nil {
			return nil, err
		}
	}
	if nullish(v) {
		return nil, fmt.Errorf("%s returned no renderer", RendererHook)
	}
	el := v.Get("domElement")
	if nullish(el) {
		el = v.Get("canvas")
	}
	if nullish(el) {
		return nil, fmt.Errorf("%s renderer has no canvas", RendererHook)
	}
	return &jsRenderer{obj: v, canvas: &jsCanvas{el: el}}, nil
}

func bareRenderer(backend capability.Backend, opts render.CanvasOptions) (render.Renderer, error) {
	el := js.Global.Get("document").Call("createElement", "canvas")
	kind := "webgl2"
	if backend == capability.BackendWebGPU {
		kind = "webgpu"
	}
	gl, err := safeCall(func() *js.Object {
		return el.Call("getContext", kind, map[string]interface{}{"antialias": opts.Antialias, "alpha": opts.Alpha})
	})
	if err != nil || nullish(gl) {
		return nil, fmt.Errorf("create %s context: %v", kind, err)
	}
	return &jsRenderer{obj: gl, canvas: &jsCanvas{el: el}}, nil
}

type jsRenderer struct {
	obj    *js.Object
	canvas *jsCanvas
}

func (r *jsRenderer) Canvas() render.Canvas { return r.canvas }

// Apply sets the pixel ratio, clamped to MaxPixelRatio and scaled by
// RenderScale, and the tone mapping exposure.
func (r *jsRenderer) Apply(s render.Settings) {
	dpr := 1.0
	if has(js.Global, "devicePixelRatio") {
		dpr = js.Global.Get("devicePixelRatio").Float()
	}
	ratio := math.Min(dpr, s.MaxPixelRatio) * s.RenderScale
	if isFunction(r.obj.Get("setPixelRatio")) {
		r.obj.Call("setPixelRatio", ratio)
	}
	if has(r.obj, "toneMappingExposure") {
		r.obj.Set("toneMappingExposure", s.Exposure)
	}
}

func (r *jsRenderer) StopLoop() {
	if isFunction(r.obj.Get("setAnimationLoop")) {
		r.obj.Call("setAnimationLoop", nil)
	}
}

func (r *jsRenderer) Dispose() {
	if isFunction(r.obj.Get("dispose")) {
		_, _ = safeCall(func() *js.Object { return r.obj.Call("dispose") })
	}
}

type jsCanvas struct {
	el *js.Object
}

// Remove detaches the canvas from its host.
func (c *jsCanvas) Remove() {
	if parent := c.el.Get("parentNode"); !nullish(parent) {
		parent.Call("removeChild", c.el)
	}
}
