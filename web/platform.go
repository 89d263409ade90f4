//go:build js
// +build js

package web

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gopherjs/gopherjs/js"

	"github.com/simukka/toybox/capability"
)

var mobileUA = regexp.MustCompile(`(?i)Mobi|Android|iPhone|iPad|iPod`)

// Platform implements capability.Platform over navigator and window.
type Platform struct{}

var _ capability.Platform = Platform{}

func navigator() *js.Object { return js.Global.Get("navigator") }

// HasWebGPU reports whether navigator.gpu exists.
func (Platform) HasWebGPU() bool {
	return has(navigator(), "gpu")
}

// RequestDevice requests a high-performance adapter and a device, then
// destroys the device; the renderer factory requests its own.
func (Platform) RequestDevice(ctx context.Context) error {
	gpu := navigator().Get("gpu")
	p, err := safeCall(func() *js.Object {
		return gpu.Call("requestAdapter", map[string]interface{}{"powerPreference": "high-performance"})
	})
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	adapter, err := await(ctx, p)
	if err != nil {
		return fmt.Errorf("request adapter: %w", err)
	}
	if nullish(adapter) {
		return capability.ErrNoAdapter
	}
	device, err := await(ctx, adapter.Call("requestDevice"))
	if err != nil {
		return fmt.Errorf("request device: %w", err)
	}
	if nullish(device) {
		return fmt.Errorf("request device: adapter returned no device")
	}
	if isFunction(device.Get("destroy")) {
		device.Call("destroy")
	}
	return nil
}

// SupportsWebGL reports whether a WebGL2 or WebGL context can be created.
func (Platform) SupportsWebGL() bool {
	canvas := js.Global.Get("document").Call("createElement", "canvas")
	for _, kind := range []string{"webgl2", "webgl", "experimental-webgl"} {
		ctx, err := safeCall(func() *js.Object { return canvas.Call("getContext", kind) })
		if err == nil && !nullish(ctx) {
			return true
		}
	}
	return false
}

// HasCaptureAPI reports whether navigator.mediaDevices.getUserMedia exists.
func (Platform) HasCaptureAPI() bool {
	md := navigator().Get("mediaDevices")
	return has(md, "getUserMedia")
}

// HasPermissionsAPI reports whether navigator.permissions.query exists.
func (Platform) HasPermissionsAPI() bool {
	return has(navigator().Get("permissions"), "query")
}

// QueryPermission returns the microphone permission state.
func (Platform) QueryPermission(ctx context.Context) (string, error) {
	p, err := safeCall(func() *js.Object {
		return navigator().Get("permissions").Call("query", map[string]interface{}{"name": "microphone"})
	})
	if err != nil {
		return "", err
	}
	status, err := await(ctx, p)
	if err != nil {
		return "", err
	}
	return status.Get("state").String(), nil
}

// SecureContext reports window.isSecureContext.
func (Platform) SecureContext() bool {
	return has(js.Global, "isSecureContext") && js.Global.Get("isSecureContext").Bool()
}

// PrefersReducedMotion reads the reduced-motion media query.
func (Platform) PrefersReducedMotion() bool {
	if !isFunction(js.Global.Get("matchMedia")) {
		return false
	}
	return js.Global.Call("matchMedia", "(prefers-reduced-motion: reduce)").Get("matches").Bool()
}

// HardwareConcurrency returns navigator.hardwareConcurrency or 0.
func (Platform) HardwareConcurrency() int {
	if !has(navigator(), "hardwareConcurrency") {
		return 0
	}
	return navigator().Get("hardwareConcurrency").Int()
}

// DeviceMemoryGB returns navigator.deviceMemory or 0.
func (Platform) DeviceMemoryGB() float64 {
	if !has(navigator(), "deviceMemory") {
		return 0
	}
	return navigator().Get("deviceMemory").Float()
}

// IsMobile guesses from the user agent.
func (Platform) IsMobile() bool {
	return mobileUA.MatchString(userAgent())
}

// Fingerprint changes when the browser, GPU exposure or context security changes.
func (p Platform) Fingerprint() string {
	return fmt.Sprintf("%s|gpu=%t|secure=%t", userAgent(), p.HasWebGPU(), p.SecureContext())
}

func userAgent() string {
	if !has(navigator(), "userAgent") {
		return ""
	}
	return navigator().Get("userAgent").String()
}
