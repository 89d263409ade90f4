// Package render pools the GPU renderer and its canvas across toy switches.
package render

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/simukka/toybox/capability"
	"github.com/simukka/toybox/pool"
)

// ErrNoBackend is returned when the environment has no usable rendering backend.
var ErrNoBackend = errors.New("render: no rendering backend available")

// Host is the element a canvas is attached to.
type Host interface {
	AppendCanvas(canvas Canvas)
}

// Canvas is the drawing surface owned by a renderer.
type Canvas interface {
	// Remove detaches the canvas from whatever host holds it.
	Remove()
}

// Settings are the quality knobs reapplied whenever the renderer changes hands.
type Settings struct {
	MaxPixelRatio float64
	RenderScale   float64
	Exposure      float64
}

// CanvasOptions configure renderer construction.
type CanvasOptions struct {
	Antialias bool
	Alpha     bool
	Settings  Settings
}

// Renderer is a live renderer built by a Factory.
type Renderer interface {
	Canvas() Canvas
	Apply(Settings)
	// StopLoop cancels any running animation loop.
	StopLoop()
	// Dispose frees GPU resources.
	Dispose()
}

// Factory constructs renderers for a backend.
type Factory interface {
	NewRenderer(ctx context.Context, backend capability.Backend, opts CanvasOptions) (Renderer, error)
}

type entry struct {
	renderer Renderer
	backend  capability.Backend
}

// Pool hands out a single reusable renderer.
type Pool struct {
	factory Factory
	prober  *capability.Prober
	logger  zerolog.Logger

	slot *pool.Slot[*entry]

	mu      sync.Mutex
	next    uint64
	owner   uint64
	pending CanvasOptions
}

// NewPool creates a renderer pool. The backend is chosen by prober.
func NewPool(factory Factory, prober *capability.Prober, logger zerolog.Logger) *Pool {
	p := &Pool{
		factory: factory,
		prober:  prober,
		logger:  logger.With().Str("component", "render").Logger(),
	}
	p.slot = pool.NewSlot(pool.KeepWarm, p.create, p.destroy)
	return p
}

func (p *Pool) create(ctx context.Context) (*entry, error) {
	info := p.prober.Renderer(ctx, false)
	if info.Backend == capability.BackendNone {
		return nil, ErrNoBackend
	}
	p.mu.Lock()
	opts := p.pending
	p.mu.Unlock()
	r, err := p.factory.NewRenderer(ctx, info.Backend, opts)
	if err != nil {
		return nil, fmt.Errorf("create %s renderer: %w", info.Backend, err)
	}
	p.logger.Info().Str("backend", string(info.Backend)).Msg("renderer created")
	return &entry{renderer: r, backend: info.Backend}, nil
}

func (p *Pool) destroy(e *entry) {
	e.renderer.StopLoop()
	e.renderer.Dispose()
	e.renderer.Canvas().Remove()
	p.logger.Info().Str("backend", string(e.backend)).Msg("renderer disposed")
}

// Handle is a toy's claim on the pooled renderer.
type Handle struct {
	Renderer Renderer
	Backend  capability.Backend
	Canvas   Canvas

	pool  *Pool
	token uint64
	once  sync.Once
}

// ApplySettings reapplies quality settings if the handle still owns the renderer.
func (h *Handle) ApplySettings(s Settings) {
	if !h.pool.owns(h.token) {
		return
	}
	h.Renderer.Apply(s)
}

// Release returns the renderer to the pool: the slot goes idle and the canvas is
// detached, but the renderer stays warm for the next toy. Releasing a stale or
// already released handle is a no-op.
func (h *Handle) Release() {
	h.once.Do(func() {
		h.pool.release(h.token)
	})
}

// Acquire attaches the pooled renderer to host, creating it when needed. A
// renderer still held by an older handle is taken over; the older handle goes stale.
func (p *Pool) Acquire(ctx context.Context, host Host, opts CanvasOptions) (*Handle, error) {
	opts.Settings = p.withDefaults(ctx, opts.Settings)
	p.mu.Lock()
	p.pending = opts
	p.mu.Unlock()

	e, err := p.slot.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	// The slot holds one reference per owner: taking ownership drops the
	// previous owner's reference, whether it was set before or during our wait.
	p.mu.Lock()
	held := p.owner != 0
	p.next++
	token := p.next
	p.owner = token
	p.mu.Unlock()
	if held {
		p.slot.Release()
	}

	canvas := e.renderer.Canvas()
	canvas.Remove()
	host.AppendCanvas(canvas)
	e.renderer.Apply(opts.Settings)

	return &Handle{
		Renderer: e.renderer,
		Backend:  e.backend,
		Canvas:   canvas,
		pool:     p,
		token:    token,
	}, nil
}

func (p *Pool) withDefaults(ctx context.Context, s Settings) Settings {
	if s.MaxPixelRatio > 0 && s.RenderScale > 0 {
		if s.Exposure == 0 {
			s.Exposure = 1
		}
		return s
	}
	perf := p.prober.Probe(ctx, capability.Options{}).Performance
	if s.MaxPixelRatio <= 0 {
		s.MaxPixelRatio = perf.MaxPixelRatio
	}
	if s.RenderScale <= 0 {
		s.RenderScale = perf.RenderScale
	}
	if s.Exposure == 0 {
		s.Exposure = 1
	}
	return s
}

func (p *Pool) owns(token uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return token != 0 && p.owner == token
}

func (p *Pool) release(token uint64) {
	p.mu.Lock()
	if p.owner != token {
		p.mu.Unlock()
		return
	}
	p.owner = 0
	p.mu.Unlock()

	if e, ok := p.slot.Peek(); ok {
		e.renderer.Canvas().Remove()
	}
	p.slot.Release()
}

// Reset clears the pool. With dispose the renderer's loop is stopped, its GPU
// resources freed and its canvas removed.
func (p *Pool) Reset(dispose bool) {
	p.mu.Lock()
	p.owner = 0
	p.mu.Unlock()
	p.slot.Reset(dispose)
}

// Backend returns the backend of the pooled renderer, if any.
func (p *Pool) Backend() (capability.Backend, bool) {
	e, ok := p.slot.Peek()
	if !ok {
		return "", false
	}
	return e.backend, true
}
