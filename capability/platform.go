package capability

import (
	"context"
	"errors"
)

// ErrNoAdapter is returned by GPU.RequestDevice when the browser exposes
// WebGPU but cannot hand out an adapter.
var ErrNoAdapter = errors.New("capability: no webgpu adapter")

// GPU probes the rendering APIs.
type GPU interface {
	// HasWebGPU reports whether the advanced GPU API exists at all.
	HasWebGPU() bool
	// RequestDevice requests an adapter and a device. It returns ErrNoAdapter
	// when no adapter is found and any other error when the device request fails.
	RequestDevice(ctx context.Context) error
	// SupportsWebGL reports whether a WebGL context can be created.
	SupportsWebGL() bool
}

// Microphone probes audio capture support.
type Microphone interface {
	HasCaptureAPI() bool
	HasPermissionsAPI() bool
	// QueryPermission returns "granted", "denied" or "prompt".
	QueryPermission(ctx context.Context) (string, error)
}

// Device reports static facts about the host.
type Device interface {
	SecureContext() bool
	PrefersReducedMotion() bool
	// HardwareConcurrency returns 0 when unknown.
	HardwareConcurrency() int
	// DeviceMemoryGB returns 0 when unknown.
	DeviceMemoryGB() float64
	IsMobile() bool
}

// Platform is everything the prober reads from the environment.
type Platform interface {
	GPU
	Microphone
	Device
	// Fingerprint identifies the environment; a change invalidates cached results.
	Fingerprint() string
}
