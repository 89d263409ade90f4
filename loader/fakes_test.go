package loader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/simukka/toybox/agent"
	"github.com/simukka/toybox/audio"
	"github.com/simukka/toybox/capability"
	"github.com/simukka/toybox/catalog"
	"github.com/simukka/toybox/config"
	"github.com/simukka/toybox/lifecycle"
	"github.com/simukka/toybox/manifest"
	"github.com/simukka/toybox/render"
	"github.com/simukka/toybox/router"
	"github.com/simukka/toybox/view"
)

const base = "https://toys.test/"

// events records cross-component call order.
type events struct {
	mu  sync.Mutex
	log []string
}

func (e *events) add(s string) {
	e.mu.Lock()
	e.log = append(e.log, s)
	e.mu.Unlock()
}

func (e *events) all() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func (e *events) index(s string) int {
	for i, v := range e.all() {
		if v == s {
			return i
		}
	}
	return -1
}

type fakePlatform struct {
	mu        sync.Mutex
	webgpu    bool
	webgl     bool
	deviceErr error
	requests  atomic.Int32
}

func (p *fakePlatform) HasWebGPU() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.webgpu
}

func (p *fakePlatform) RequestDevice(ctx context.Context) error {
	p.requests.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.deviceErr
}

func (p *fakePlatform) setDeviceErr(err error) {
	p.mu.Lock()
	p.deviceErr = err
	p.mu.Unlock()
}

func (p *fakePlatform) SupportsWebGL() bool                                 { return p.webgl }
func (p *fakePlatform) HasCaptureAPI() bool                                 { return true }
func (p *fakePlatform) HasPermissionsAPI() bool                             { return true }
func (p *fakePlatform) QueryPermission(ctx context.Context) (string, error) { return "prompt", nil }
func (p *fakePlatform) SecureContext() bool                                 { return true }
func (p *fakePlatform) PrefersReducedMotion() bool                          { return false }
func (p *fakePlatform) HardwareConcurrency() int                            { return 8 }
func (p *fakePlatform) DeviceMemoryGB() float64                             { return 8 }
func (p *fakePlatform) IsMobile() bool                                      { return false }
func (p *fakePlatform) Fingerprint() string                                 { return "test-browser" }

func webgpuPlatform() *fakePlatform { return &fakePlatform{webgpu: true, webgl: true} }
func webglPlatform() *fakePlatform  { return &fakePlatform{webgl: true} }

type fakeHistory struct {
	mu        sync.Mutex
	loc       *url.URL
	pushes    []string
	listeners map[int]func()
	next      int
	ev        *events
}

func (h *fakeHistory) Location() *url.URL {
	h.mu.Lock()
	defer h.mu.Unlock()
	u := *h.loc
	return &u
}

func (h *fakeHistory) Push(raw string) {
	u, err := url.Parse(raw)
	if err != nil {
		panic(err)
	}
	h.mu.Lock()
	h.loc = u
	h.pushes = append(h.pushes, raw)
	h.mu.Unlock()
	h.ev.add("push")
}

func (h *fakeHistory) OnPopState(fn func()) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.next
	h.next++
	h.listeners[id] = fn
	return func() {
		h.mu.Lock()
		delete(h.listeners, id)
		h.mu.Unlock()
	}
}

func (h *fakeHistory) popTo(raw string) {
	u, _ := url.Parse(raw)
	h.mu.Lock()
	h.loc = u
	fns := make([]func(), 0, len(h.listeners))
	for _, fn := range h.listeners {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (h *fakeHistory) pushed() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.pushes...)
}

func (h *fakeHistory) listenerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners)
}

type fakeCanvas struct{}

func (fakeCanvas) Remove() {}

type fakeContainer struct {
	id      int
	ev      *events
	cleared atomic.Int32
}

func (c *fakeContainer) Clear() {
	c.cleared.Add(1)
	c.ev.add(fmt.Sprintf("clear:%d", c.id))
}

func (c *fakeContainer) AppendCanvas(render.Canvas) {}

type fakeSurface struct {
	mu         sync.Mutex
	ev         *events
	renders    []view.State
	containers []*fakeContainer
}

func (s *fakeSurface) Render(st view.State) {
	s.mu.Lock()
	s.renders = append(s.renders, st)
	s.mu.Unlock()
}

func (s *fakeSurface) NewContainer() view.Container {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := &fakeContainer{id: len(s.containers), ev: s.ev}
	s.containers = append(s.containers, c)
	return c
}

func (s *fakeSurface) last() view.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders[len(s.renders)-1]
}

func (s *fakeSurface) containerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.containers)
}

type fakeImporter struct {
	mu      sync.Mutex
	modules map[string]Module
	errs    map[string]error
	calls   []string
}

func (i *fakeImporter) Import(ctx context.Context, u string) (Module, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.calls = append(i.calls, u)
	if err, ok := i.errs[u]; ok {
		return nil, err
	}
	m, ok := i.modules[u]
	if !ok {
		return nil, errors.New("TypeError: Failed to fetch dynamically imported module: " + u)
	}
	return m, nil
}

func (i *fakeImporter) callCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.calls)
}

type fakeNavigator struct {
	loc   *url.URL
	hrefs []string
}

func (n *fakeNavigator) Navigate(href string) { n.hrefs = append(n.hrefs, href) }
func (n *fakeNavigator) Location() *url.URL  { return n.loc }

type fakeKeyboard struct {
	mu       sync.Mutex
	handlers map[int]func()
	next     int
}

func (k *fakeKeyboard) OnEscape(fn func()) func() {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.handlers == nil {
		k.handlers = map[int]func(){}
	}
	id := k.next
	k.next++
	k.handlers[id] = fn
	return func() {
		k.mu.Lock()
		delete(k.handlers, id)
		k.mu.Unlock()
	}
}

func (k *fakeKeyboard) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.handlers)
}

func (k *fakeKeyboard) press() {
	k.mu.Lock()
	fns := make([]func(), 0, len(k.handlers))
	for _, fn := range k.handlers {
		fns = append(fns, fn)
	}
	k.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

type fakeStream struct{ ev *events }

func (s *fakeStream) ID() string { return "mic" }
func (s *fakeStream) Stop()      { s.ev.add("mic-stop") }

type fakeDevices struct {
	ev    *events
	calls atomic.Int32
}

func (d *fakeDevices) HasCaptureAPI() bool { return true }
func (d *fakeDevices) GetUserMedia(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	d.calls.Add(1)
	return &fakeStream{ev: d.ev}, nil
}
func (d *fakeDevices) GetDisplayMedia(ctx context.Context, c audio.Constraints) (audio.Stream, error) {
	return &fakeStream{ev: d.ev}, nil
}

type fakeNode struct{}

func (fakeNode) Disconnect() {}

type fakeAnalyser struct{}

func (fakeAnalyser) FrequencyBinCount() int     { return 128 }
func (fakeAnalyser) ReadFrequencyData([]byte) {}

type fakeGraph struct{}

func (fakeGraph) NewListener() audio.Listener { return struct{}{} }
func (fakeGraph) AttachStream(ctx context.Context, l audio.Listener, s audio.Stream, cfg audio.Config) (audio.Node, audio.Analyser, error) {
	return fakeNode{}, fakeAnalyser{}, nil
}
func (fakeGraph) AttachDemo(ctx context.Context, l audio.Listener, cfg audio.Config) (audio.Node, audio.Analyser, error) {
	return fakeNode{}, fakeAnalyser{}, nil
}

type fakeRenderer struct {
	ev       *events
	disposed atomic.Int32
}

func (r *fakeRenderer) Canvas() render.Canvas  { return fakeCanvas{} }
func (r *fakeRenderer) Apply(render.Settings) {}
func (r *fakeRenderer) StopLoop()             {}
func (r *fakeRenderer) Dispose() {
	r.disposed.Add(1)
	r.ev.add("renderer-dispose")
}

type fakeFactory struct {
	ev    *events
	built atomic.Int32
}

func (f *fakeFactory) NewRenderer(ctx context.Context, backend capability.Backend, opts render.CanvasOptions) (render.Renderer, error) {
	f.built.Add(1)
	return &fakeRenderer{ev: f.ev}, nil
}

// toyInstance is what fake start functions return.
type toyInstance struct {
	slug     string
	ev       *events
	disposed atomic.Int32
}

func (t *toyInstance) Dispose() {
	t.disposed.Add(1)
	t.ev.add("dispose:" + t.slug)
}

type testEnv struct {
	loader    *Loader
	ev        *events
	platform  *fakePlatform
	prober    *capability.Prober
	history   *fakeHistory
	surface   *fakeSurface
	view      *view.View
	importer  *fakeImporter
	navigator *fakeNavigator
	keyboard  *fakeKeyboard
	lifecycle *lifecycle.Lifecycle
	audio     *audio.Pool
	devices   *fakeDevices
	factory   *fakeFactory
	starters  *Starters
	agent     *agent.Surface
	published *agent.MemoryPublisher
}

func newTestEnv(t *testing.T, platform *fakePlatform, toys []catalog.Toy, startURL string) *testEnv {
	t.Helper()
	ev := &events{}
	cat, err := catalog.New(toys)
	require.NoError(t, err)
	u, err := url.Parse(startURL)
	require.NoError(t, err)

	e := &testEnv{
		ev:        ev,
		platform:  platform,
		history:   &fakeHistory{loc: u, listeners: map[int]func(){}, ev: ev},
		surface:   &fakeSurface{ev: ev},
		importer:  &fakeImporter{modules: map[string]Module{}, errs: map[string]error{}},
		navigator: &fakeNavigator{},
		keyboard:  &fakeKeyboard{},
		devices:   &fakeDevices{ev: ev},
		factory:   &fakeFactory{ev: ev},
		starters:  NewStarters(),
		published: agent.NewMemoryPublisher(),
	}
	logger := zerolog.Nop()
	e.prober = capability.NewProber(platform)
	e.view = view.New(e.surface, logger)
	e.lifecycle = lifecycle.New(e.keyboard, logger)
	e.agent = agent.NewSurface(agent.WithPublisher(e.published))
	e.audio = audio.NewPool(e.devices, fakeGraph{}, audio.WithReporter(e.agent))

	e.loader, err = New(Deps{
		Catalog:   cat,
		Router:    router.New(e.history, router.Options{}),
		Prober:    e.prober,
		View:      e.view,
		Resolver:  manifest.NewStaticResolver(manifest.Manifest{}, base),
		Importer:  e.importer,
		Renderers: render.NewPool(e.factory, e.prober, logger),
		Audio:     e.audio,
		Lifecycle: e.lifecycle,
		Agent:     e.agent,
		Starters:  e.starters,
		Navigator: e.navigator,
		Config:    config.Client{AudioStarterAttempts: 20, AudioStarterDelayMS: 5},
		Logger:    logger,
	})
	require.NoError(t, err)
	t.Cleanup(e.loader.Shutdown)
	return e
}

// module registers a toy module whose start returns a fresh toyInstance.
func (e *testEnv) module(ref string, start StartFunc) {
	e.importer.mu.Lock()
	defer e.importer.mu.Unlock()
	e.importer.modules[base+ref] = Exports{"start": start}
}

// simpleStart returns a start function recording its instances.
func (e *testEnv) simpleStart(slug string, out *[]*toyInstance) StartFunc {
	var mu sync.Mutex
	return func(ctx context.Context, args StartArgs) (any, error) {
		inst := &toyInstance{slug: slug, ev: e.ev}
		mu.Lock()
		if out != nil {
			*out = append(*out, inst)
		}
		mu.Unlock()
		e.ev.add("start:" + slug)
		return inst, nil
	}
}

func (e *testEnv) activeRef() any {
	h := e.lifecycle.Active()
	if h == nil {
		return nil
	}
	return h.Ref
}
