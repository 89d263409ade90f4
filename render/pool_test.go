package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/simukka/toybox/capability"
)

type fakeCanvas struct {
	mu      sync.Mutex
	host    *fakeHost
	removed int
}

func (c *fakeCanvas) Remove() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.host != nil {
		c.host.canvas = nil
		c.host = nil
	}
	c.removed++
}

type fakeHost struct {
	name   string
	canvas *fakeCanvas
}

func (h *fakeHost) AppendCanvas(canvas Canvas) {
	c := canvas.(*fakeCanvas)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = h
	h.canvas = c
}

type fakeRenderer struct {
	mu       sync.Mutex
	canvas   *fakeCanvas
	backend  capability.Backend
	applied  []Settings
	stopped  bool
	disposed bool
}

func (r *fakeRenderer) Canvas() Canvas    { return r.canvas }
func (r *fakeRenderer) Apply(s Settings) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, s)
}
func (r *fakeRenderer) StopLoop()         { r.stopped = true }
func (r *fakeRenderer) Dispose()          { r.disposed = true }
func (r *fakeRenderer) lastApplied() Settings {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.applied[len(r.applied)-1]
}

type fakeFactory struct {
	built []*fakeRenderer
	err   error
	// gate, when set, holds construction until closed.
	gate chan struct{}
}

func (f *fakeFactory) NewRenderer(ctx context.Context, backend capability.Backend, opts CanvasOptions) (Renderer, error) {
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	r := &fakeRenderer{canvas: &fakeCanvas{}, backend: backend}
	f.built = append(f.built, r)
	return r, nil
}

type platform struct {
	webgpu bool
	webgl  bool
	cores  int
}

func (p platform) HasWebGPU() bool                                     { return p.webgpu }
func (p platform) RequestDevice(ctx context.Context) error             { return nil }
func (p platform) SupportsWebGL() bool                                 { return p.webgl }
func (p platform) HasCaptureAPI() bool                                 { return true }
func (p platform) HasPermissionsAPI() bool                             { return false }
func (p platform) QueryPermission(ctx context.Context) (string, error) { return "prompt", nil }
func (p platform) SecureContext() bool                                 { return true }
func (p platform) PrefersReducedMotion() bool                          { return false }
func (p platform) HardwareConcurrency() int                            { return p.cores }
func (p platform) DeviceMemoryGB() float64                             { return 0 }
func (p platform) IsMobile() bool                                      { return false }
func (p platform) Fingerprint() string                                 { return "fp" }

func newPool(f *fakeFactory, pl platform) *Pool {
	return NewPool(f, capability.NewProber(pl), zerolog.Nop())
}

func TestAcquire_CreatesForProbedBackend(t *testing.T) {
	f := &fakeFactory{}
	p := newPool(f, platform{webgpu: true, webgl: true, cores: 8})
	host := &fakeHost{name: "a"}

	h, err := p.Acquire(context.Background(), host, CanvasOptions{})
	require.NoError(t, err)
	assert.Equal(t, capability.BackendWebGPU, h.Backend)
	assert.Same(t, host.canvas, h.Canvas)
	require.Len(t, f.built, 1)
	assert.Equal(t, Settings{MaxPixelRatio: 2, RenderScale: 1, Exposure: 1}, f.built[0].lastApplied())
}

// TestAcquire_LowPowerDefaults tests that quality defaults follow the performance tier
func TestAcquire_LowPowerDefaults(t *testing.T) {
	f := &fakeFactory{}
	p := newPool(f, platform{webgl: true, cores: 2})

	h, err := p.Acquire(context.Background(), &fakeHost{}, CanvasOptions{})
	require.NoError(t, err)
	assert.Equal(t, capability.BackendWebGL, h.Backend)
	assert.Equal(t, Settings{MaxPixelRatio: 1.25, RenderScale: 0.9, Exposure: 1}, f.built[0].lastApplied())
}

// TestRelease_KeepsRendererWarm tests reuse of an idle renderer on a new host
func TestRelease_KeepsRendererWarm(t *testing.T) {
	f := &fakeFactory{}
	p := newPool(f, platform{webgpu: true, webgl: true, cores: 8})
	first := &fakeHost{name: "first"}
	second := &fakeHost{name: "second"}

	h1, err := p.Acquire(context.Background(), first, CanvasOptions{})
	require.NoError(t, err)
	h1.Release()
	assert.Nil(t, first.canvas, "release detaches the canvas")
	assert.False(t, f.built[0].disposed, "release keeps the renderer warm")

	custom := Settings{MaxPixelRatio: 1.5, RenderScale: 0.75, Exposure: 1.2}
	h2, err := p.Acquire(context.Background(), second, CanvasOptions{Settings: custom})
	require.NoError(t, err)
	assert.Len(t, f.built, 1)
	assert.Same(t, h1.Renderer, h2.Renderer)
	assert.Same(t, second.canvas, h2.Canvas)
	assert.Equal(t, custom, f.built[0].lastApplied())
}

// TestAcquire_TakesOverHeldRenderer tests that a stale handle cannot release the new owner
func TestAcquire_TakesOverHeldRenderer(t *testing.T) {
	f := &fakeFactory{}
	p := newPool(f, platform{webgpu: true, webgl: true, cores: 8})
	first := &fakeHost{}
	second := &fakeHost{}

	h1, _ := p.Acquire(context.Background(), first, CanvasOptions{})
	h2, err := p.Acquire(context.Background(), second, CanvasOptions{})
	require.NoError(t, err)
	assert.Len(t, f.built, 1)
	assert.Nil(t, first.canvas)

	applied := len(f.built[0].applied)
	h1.ApplySettings(Settings{MaxPixelRatio: 9})
	assert.Len(t, f.built[0].applied, applied, "stale handle cannot change settings")

	h1.Release()
	assert.Same(t, second.canvas, h2.Canvas, "stale release leaves the new host attached")

	h2.Release()
	h2.Release()
	assert.Nil(t, second.canvas)
}

func TestReset_DisposesRenderer(t *testing.T) {
	f := &fakeFactory{}
	p := newPool(f, platform{webgpu: true, webgl: true, cores: 8})
	host := &fakeHost{}

	h, _ := p.Acquire(context.Background(), host, CanvasOptions{})
	p.Reset(true)
	r := f.built[0]
	assert.True(t, r.stopped)
	assert.True(t, r.disposed)
	assert.Nil(t, host.canvas)
	_, live := p.Backend()
	assert.False(t, live)

	h.Release()
	_, err := p.Acquire(context.Background(), host, CanvasOptions{})
	require.NoError(t, err)
	assert.Len(t, f.built, 2)
}

func TestAcquire_Failures(t *testing.T) {
	p := newPool(&fakeFactory{}, platform{})
	_, err := p.Acquire(context.Background(), &fakeHost{}, CanvasOptions{})
	assert.ErrorIs(t, err, ErrNoBackend)

	boom := errors.New("context lost")
	f := &fakeFactory{err: boom}
	p = newPool(f, platform{webgl: true, cores: 8})
	_, err = p.Acquire(context.Background(), &fakeHost{}, CanvasOptions{})
	assert.ErrorIs(t, err, boom)

	f.err = nil
	_, err = p.Acquire(context.Background(), &fakeHost{}, CanvasOptions{})
	assert.NoError(t, err, "pool is retryable after a failed construction")
}

// TestAcquire_ConcurrentFirstAcquiresKeepOneReference tests that two acquires
// racing for an empty pool leave a single owner reference behind
func TestAcquire_ConcurrentFirstAcquiresKeepOneReference(t *testing.T) {
	f := &fakeFactory{gate: make(chan struct{})}
	p := newPool(f, platform{webgpu: true, webgl: true, cores: 8})
	opts := CanvasOptions{Settings: Settings{MaxPixelRatio: 1, RenderScale: 1}}

	var wg sync.WaitGroup
	handles := make([]*Handle, 2)
	for i := range handles {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			h, err := p.Acquire(context.Background(), &fakeHost{name: fmt.Sprint(i)}, opts)
			assert.NoError(t, err)
			handles[i] = h
		}(i)
	}
	time.Sleep(10 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	require.Len(t, f.built, 1)
	assert.Equal(t, 1, p.slot.Refs())
	owners := 0
	for _, h := range handles {
		if p.owns(h.token) {
			owners++
		}
	}
	assert.Equal(t, 1, owners)

	handles[0].Release()
	handles[1].Release()
	assert.Zero(t, p.slot.Refs())
	assert.True(t, p.slot.Live(), "renderer stays warm")
}
