// Package capability probes what the current browser environment supports:
// the rendering backend, microphone permission and a performance tier.
package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Human-readable reasons surfaced to the view.
const (
	ReasonNoWebGPU        = "WebGPU is not available in this browser."
	ReasonCompatibility   = "WebGL compatibility mode is enabled."
	ReasonNoAdapter       = "No compatible WebGPU adapter was found."
	ReasonDeviceFailed    = "Unable to initialize a WebGPU device."
	ReasonNoWebGL         = "WebGL is not available either."
	ReasonMicDenied       = "Microphone access is blocked in the browser settings."
	ReasonMicUnsupported  = "This browser cannot capture microphone audio."
	ReasonMicQueryFailed  = "Could not read microphone permission; the browser will ask when audio starts."
	BlockingNoBackend     = "No supported rendering backend (WebGPU or WebGL) is available on this device."
	lowPowerWarningPrefix = "Performance mode recommended: "
)

// Options controls a single probe.
type Options struct {
	// ForceRetry bypasses every cache.
	ForceRetry bool
}

type rendererEntry struct {
	fingerprint string
	info        RendererInfo
}

type snapshotEntry struct {
	fingerprint string
	snapshot    Snapshot
}

type microphoneEntry struct {
	fingerprint string
	info        MicrophoneInfo
}

// Prober reads a Platform and caches the results per environment fingerprint.
type Prober struct {
	platform           Platform
	forceCompatibility bool
	logger             zerolog.Logger

	group      singleflight.Group
	mu         sync.Mutex
	renderer   *rendererEntry
	snapshot   *snapshotEntry
	microphone *microphoneEntry
}

// ProberOption customizes a Prober.
type ProberOption func(*Prober)

// WithForcedCompatibility skips the WebGPU attempt and always selects WebGL.
func WithForcedCompatibility(force bool) ProberOption {
	return func(p *Prober) { p.forceCompatibility = force }
}

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) ProberOption {
	return func(p *Prober) { p.logger = l.With().Str("component", "capability").Logger() }
}

// NewProber creates a prober over platform.
func NewProber(platform Platform, opts ...ProberOption) *Prober {
	p := &Prober{platform: platform, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Invalidate drops every cached result.
func (p *Prober) Invalidate() {
	p.mu.Lock()
	p.renderer = nil
	p.snapshot = nil
	p.microphone = nil
	p.mu.Unlock()
}

// Probe returns the capability snapshot, probing only when the cache is cold,
// the environment changed or opts.ForceRetry is set.
func (p *Prober) Probe(ctx context.Context, opts Options) Snapshot {
	fp := p.platform.Fingerprint()
	if !opts.ForceRetry {
		p.mu.Lock()
		cached := p.snapshot
		p.mu.Unlock()
		if cached != nil && cached.fingerprint == fp {
			return cached.snapshot
		}
	}

	v, _, _ := p.group.Do(flightKey("snapshot", fp, opts.ForceRetry), func() (interface{}, error) {
		var (
			renderer   RendererInfo
			microphone MicrophoneInfo
			env        Environment
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			renderer = p.Renderer(gctx, opts.ForceRetry)
			return nil
		})
		g.Go(func() error {
			microphone = p.microphoneInfo(gctx, opts.ForceRetry)
			return nil
		})
		g.Go(func() error {
			env = p.environment()
			return nil
		})
		_ = g.Wait()

		snap := assemble(renderer, microphone, env)
		if ctx.Err() == nil {
			p.mu.Lock()
			p.snapshot = &snapshotEntry{fingerprint: fp, snapshot: snap}
			p.mu.Unlock()
		}
		p.logger.Debug().
			Str("backend", string(snap.Renderer.Backend)).
			Str("microphone", string(snap.Microphone.State)).
			Bool("low_power", snap.Performance.LowPower).
			Bool("can_proceed", snap.CanProceed).
			Msg("capabilities probed")
		return snap, nil
	})
	return v.(Snapshot)
}

// Renderer returns the rendering backend choice. Without force, repeated calls
// in an unchanged environment request the GPU device only once.
func (p *Prober) Renderer(ctx context.Context, force bool) RendererInfo {
	fp := p.platform.Fingerprint()
	if !force {
		p.mu.Lock()
		cached := p.renderer
		p.mu.Unlock()
		if cached != nil && cached.fingerprint == fp {
			return cached.info
		}
	}
	v, _, _ := p.group.Do(flightKey("renderer", fp, force), func() (interface{}, error) {
		info := p.probeRenderer(ctx)
		// A probe cut short by cancellation says nothing about the device.
		if ctx.Err() == nil {
			p.mu.Lock()
			p.renderer = &rendererEntry{fingerprint: fp, info: info}
			p.mu.Unlock()
		}
		return info, nil
	})
	return v.(RendererInfo)
}

// MicrophonePermission probes microphone support and permission. The loader
// calls it speculatively so the answer is warm when an audio prompt appears.
func (p *Prober) MicrophonePermission(ctx context.Context) MicrophoneInfo {
	return p.microphoneInfo(ctx, false)
}

func (p *Prober) microphoneInfo(ctx context.Context, force bool) MicrophoneInfo {
	fp := p.platform.Fingerprint()
	if !force {
		p.mu.Lock()
		cached := p.microphone
		p.mu.Unlock()
		if cached != nil && cached.fingerprint == fp {
			return cached.info
		}
	}
	v, _, _ := p.group.Do(flightKey("microphone", fp, force), func() (interface{}, error) {
		info := p.probeMicrophone(ctx)
		if ctx.Err() == nil {
			p.mu.Lock()
			p.microphone = &microphoneEntry{fingerprint: fp, info: info}
			p.mu.Unlock()
		}
		return info, nil
	})
	return v.(MicrophoneInfo)
}

func flightKey(kind, fp string, force bool) string {
	if force {
		return kind + ":force:" + fp
	}
	return kind + ":" + fp
}

func (p *Prober) probeRenderer(ctx context.Context) (info RendererInfo) {
	fallback := func(reason string, tried, retry bool) RendererInfo {
		info := RendererInfo{
			Backend:        BackendWebGL,
			FallbackReason: reason,
			TriedWebGPU:    tried,
			ShouldRetry:    retry,
		}
		if !p.safeBool(p.platform.SupportsWebGL, false) {
			info.Backend = BackendNone
			info.FallbackReason = strings.TrimSpace(reason + " " + ReasonNoWebGL)
		}
		return info
	}

	if !p.safeBool(p.platform.HasWebGPU, false) {
		return fallback(ReasonNoWebGPU, false, false)
	}
	if p.forceCompatibility {
		return fallback(ReasonCompatibility, false, false)
	}

	err := p.requestDevice(ctx)
	switch {
	case err == nil:
		return RendererInfo{Backend: BackendWebGPU, TriedWebGPU: true}
	case errors.Is(err, ErrNoAdapter):
		p.logger.Warn().Err(err).Msg("webgpu adapter unavailable, falling back to webgl")
		return fallback(ReasonNoAdapter, true, true)
	default:
		p.logger.Warn().Err(err).Msg("webgpu device request failed, falling back to webgl")
		return fallback(ReasonDeviceFailed, true, true)
	}
}

func (p *Prober) requestDevice(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("webgpu device request panicked: %v", r)
		}
	}()
	return p.platform.RequestDevice(ctx)
}

func (p *Prober) probeMicrophone(ctx context.Context) (info MicrophoneInfo) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn().Interface("panic", r).Msg("microphone probe panicked")
			info = MicrophoneInfo{Supported: true, State: PermissionUnknown, Reason: ReasonMicQueryFailed}
		}
	}()

	if !p.platform.HasCaptureAPI() {
		return MicrophoneInfo{Supported: false, State: PermissionUnsupported, Reason: ReasonMicUnsupported}
	}
	if !p.platform.HasPermissionsAPI() {
		return MicrophoneInfo{Supported: true, State: PermissionPrompt}
	}
	state, err := p.platform.QueryPermission(ctx)
	if err != nil {
		p.logger.Debug().Err(err).Msg("microphone permission query failed")
		return MicrophoneInfo{Supported: true, State: PermissionUnknown, Reason: ReasonMicQueryFailed}
	}
	switch PermissionState(state) {
	case PermissionGranted:
		return MicrophoneInfo{Supported: true, State: PermissionGranted}
	case PermissionDenied:
		return MicrophoneInfo{Supported: true, State: PermissionDenied, Reason: ReasonMicDenied}
	default:
		return MicrophoneInfo{Supported: true, State: PermissionPrompt}
	}
}

func (p *Prober) environment() Environment {
	return Environment{
		SecureContext:       p.safeBool(p.platform.SecureContext, false),
		ReducedMotion:       p.safeBool(p.platform.PrefersReducedMotion, false),
		HardwareConcurrency: p.safeInt(p.platform.HardwareConcurrency),
		DeviceMemoryGB:      p.safeFloat(p.platform.DeviceMemoryGB),
		Mobile:              p.safeBool(p.platform.IsMobile, false),
	}
}

func (p *Prober) safeBool(fn func() bool, fallback bool) (v bool) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Warn().Interface("panic", r).Msg("capability read panicked")
			v = fallback
		}
	}()
	return fn()
}

func (p *Prober) safeInt(fn func() int) (v int) {
	defer func() {
		if r := recover(); r != nil {
			v = 0
		}
	}()
	return fn()
}

func (p *Prober) safeFloat(fn func() float64) (v float64) {
	defer func() {
		if r := recover(); r != nil {
			v = 0
		}
	}()
	return fn()
}

// PerformanceFor derives the performance tier from environment facts.
func PerformanceFor(env Environment) Performance {
	var reasons []string
	if env.Mobile {
		reasons = append(reasons, "mobile device")
	}
	if env.ReducedMotion {
		reasons = append(reasons, "reduced motion preference")
	}
	if env.DeviceMemoryGB > 0 && env.DeviceMemoryGB <= 4 {
		reasons = append(reasons, fmt.Sprintf("%gGB device memory", env.DeviceMemoryGB))
	}
	if env.HardwareConcurrency > 0 && env.HardwareConcurrency <= 4 {
		reasons = append(reasons, fmt.Sprintf("%d CPU cores", env.HardwareConcurrency))
	}
	if len(reasons) == 0 {
		return Performance{MaxPixelRatio: DefaultMaxPixelRatio, RenderScale: DefaultRenderScale}
	}
	return Performance{
		LowPower:      true,
		Reason:        strings.Join(reasons, ", "),
		MaxPixelRatio: LowPowerMaxPixelRatio,
		RenderScale:   LowPowerRenderScale,
	}
}

func assemble(renderer RendererInfo, microphone MicrophoneInfo, env Environment) Snapshot {
	snap := Snapshot{
		Renderer:       renderer,
		Microphone:     microphone,
		Environment:    env,
		Performance:    PerformanceFor(env),
		BlockingIssues: []string{},
		Warnings:       []string{},
	}
	if renderer.Backend == BackendNone {
		snap.BlockingIssues = append(snap.BlockingIssues, BlockingNoBackend)
	} else if renderer.IsFallback() {
		snap.Warnings = append(snap.Warnings, renderer.FallbackReason)
	}
	switch microphone.State {
	case PermissionDenied, PermissionUnsupported:
		snap.Warnings = append(snap.Warnings, microphone.Reason)
	}
	if snap.Performance.LowPower {
		snap.Warnings = append(snap.Warnings, lowPowerWarningPrefix+snap.Performance.Reason)
	}
	snap.CanProceed = len(snap.BlockingIssues) == 0
	return snap
}
