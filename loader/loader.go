// Package loader resolves, gates, mounts and tears down toys. It composes the
// catalog, capability probe, pools, router, lifecycle and view.
//
// Every LoadToy and BackToLibrary call takes a generation number. A step that
// mutates the view or lifecycle first checks that its generation is still the
// latest; results of superseded loads are disposed, never adopted.
package loader

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

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

// Deps are the services a Loader composes. Catalog, Router, Prober, View,
// Resolver and Importer are required; the rest default when nil.
type Deps struct {
	Catalog   *catalog.Catalog
	Router    *router.Router
	Prober    *capability.Prober
	View      *view.View
	Resolver  *manifest.Resolver
	Importer  Importer
	Renderers *render.Pool
	Audio     *audio.Pool
	Lifecycle *lifecycle.Lifecycle
	Agent     *agent.Surface
	Starters  StarterRegistry
	Navigator Navigator
	Config    config.Client
	Logger    zerolog.Logger
}

// Options control a single LoadToy call.
type Options struct {
	// PushState records the slug in browser history once the toy mounts.
	PushState bool
}

// BackOptions control BackToLibrary.
type BackOptions struct {
	// UpdateRoute pushes the library URL. Popstate handlers leave it false.
	UpdateRoute bool
}

// Loader orchestrates toy loads.
type Loader struct {
	catalog   *catalog.Catalog
	router    *router.Router
	prober    *capability.Prober
	view      *view.View
	resolver  *manifest.Resolver
	importer  Importer
	renderers *render.Pool
	audio     *audio.Pool
	lifecycle *lifecycle.Lifecycle
	agent     *agent.Surface
	starters  StarterRegistry
	navigator Navigator
	config    config.Client
	logger    zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	gen       uint64
	committed uint64
	navOnce   sync.Once
	unlisten  func()
}

// New creates a loader and resets the lifecycle so no toy leaks in from an
// earlier loader.
func New(d Deps) (*Loader, error) {
	var missing []string
	if d.Catalog == nil {
		missing = append(missing, "Catalog")
	}
	if d.Router == nil {
		missing = append(missing, "Router")
	}
	if d.Prober == nil {
		missing = append(missing, "Prober")
	}
	if d.View == nil {
		missing = append(missing, "View")
	}
	if d.Resolver == nil {
		missing = append(missing, "Resolver")
	}
	if d.Importer == nil {
		missing = append(missing, "Importer")
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("loader: missing dependencies: %s", strings.Join(missing, ", "))
	}

	logger := d.Logger.With().Str("component", "loader").Logger()
	if d.Lifecycle == nil {
		d.Lifecycle = lifecycle.New(nil, d.Logger)
	}
	if d.Agent == nil {
		d.Agent = agent.NewSurface(agent.WithLogger(d.Logger))
	}
	if d.Starters == nil {
		d.Starters = NewStarters()
	}
	if d.Navigator == nil {
		d.Navigator = noopNavigator{}
	}
	d.Config = d.Config.WithDefaults()

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		catalog:   d.Catalog,
		router:    d.Router,
		prober:    d.Prober,
		view:      d.View,
		resolver:  d.Resolver,
		importer:  d.Importer,
		renderers: d.Renderers,
		audio:     d.Audio,
		lifecycle: d.Lifecycle,
		agent:     d.Agent,
		starters:  d.Starters,
		navigator: d.Navigator,
		config:    d.Config,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
	l.lifecycle.Reset()
	return l, nil
}

type noopNavigator struct{}

func (noopNavigator) Navigate(string)    {}
func (noopNavigator) Location() *url.URL { return nil }

// Lifecycle returns the lifecycle the loader adopts toys into.
func (l *Loader) Lifecycle() *lifecycle.Lifecycle { return l.lifecycle }

// Agent returns the automation surface.
func (l *Loader) Agent() *agent.Surface { return l.agent }

func (l *Loader) begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	return l.gen
}

func (l *Loader) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.gen == gen
}

// advance claims a new generation if gen is still current. Only the first
// caller for a given gen succeeds.
func (l *Loader) advance(gen uint64) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen {
		return 0, false
	}
	l.gen++
	return l.gen, true
}

// commit reports whether gen may push history; it is true once per generation.
func (l *Loader) commit(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen != gen || l.committed == gen {
		return false
	}
	l.committed = gen
	return true
}

func (l *Loader) backHandler() func() {
	return func() { l.BackToLibrary(BackOptions{UpdateRoute: true}) }
}

// LoadToy runs resolve, capability gate, mount and start for slug. The error
// returned is the failure shown to the user; nil means the toy mounted, the
// load was superseded, or a fallback decision is pending.
func (l *Loader) LoadToy(ctx context.Context, slug string, opts Options) error {
	gen := l.begin()
	log := l.logger.With().Str("slug", slug).Uint64("gen", gen).Logger()

	toy, ok := l.catalog.Lookup(slug)
	if !ok {
		err := ErrUnknownToy(slug)
		l.clearActive()
		l.view.ShowUnavailable(slug, l.backHandler())
		log.Warn().Err(err).Msg("toy not in catalog")
		return err
	}

	if toy.IsPage() {
		return l.navigatePage(ctx, gen, toy, log)
	}

	l.prewarm(ctx)
	snap := l.prober.Probe(ctx, capability.Options{})
	if !l.current(gen) {
		log.Debug().Msg("load superseded during capability probe")
		return nil
	}

	if !snap.CanProceed {
		err := ErrCapabilityBlocked(slug, strings.Join(snap.BlockingIssues, "; "))
		l.clearActive()
		l.view.ShowCapabilityError(toy, snap, l.backHandler())
		log.Error().Err(err).Msg("no rendering backend")
		return err
	}
	if toy.RequiresWebGPU && snap.Renderer.Backend != capability.BackendWebGPU {
		l.clearActive()
		if toy.AllowWebGLFallback {
			l.view.ShowFallbackWarning(toy, snap, func() {
				next, ok := l.advance(gen)
				if !ok {
					log.Debug().Msg("fallback decision already taken or superseded")
					return
				}
				_ = l.mount(l.ctx, next, toy, snap, opts)
			}, l.backHandler())
			log.Info().Str("reason", snap.Renderer.FallbackReason).Msg("waiting for WebGL fallback decision")
			return nil
		}
		err := ErrCapabilityBlocked(slug, snap.Renderer.FallbackReason)
		l.view.ShowCapabilityError(toy, snap, l.backHandler())
		log.Error().Err(err).Msg("toy requires WebGPU")
		return err
	}

	return l.mount(ctx, gen, toy, snap, opts)
}

// clearActive disposes the running toy before a status replaces it.
func (l *Loader) clearActive() {
	l.lifecycle.RemoveEscapeHandler()
	l.lifecycle.DisposeActive()
	l.starters.Clear()
	l.view.ClearActiveToy()
}

func (l *Loader) navigatePage(ctx context.Context, gen uint64, toy catalog.Toy, log zerolog.Logger) error {
	l.lifecycle.RemoveEscapeHandler()
	l.lifecycle.DisposeActive()
	l.view.ResetRendererStatus()
	href, err := l.resolver.Resolve(ctx, toy.Module)
	if err != nil {
		err = ErrResolve(toy.Slug, err)
		if l.current(gen) {
			l.view.ShowImportError(toy, view.HintGeneric, l.backHandler())
		}
		log.Error().Err(err).Msg("page toy could not be resolved")
		return err
	}
	if !l.current(gen) {
		return nil
	}
	log.Info().Str("href", href).Msg("navigating to page toy")
	l.navigator.Navigate(href)
	return nil
}

// prewarm starts the capability and microphone probes without waiting. The
// gate's Probe call joins the in-flight capability probe.
func (l *Loader) prewarm(ctx context.Context) {
	go l.prober.Probe(ctx, capability.Options{})
	go l.prober.MicrophonePermission(ctx)
}

func (l *Loader) mount(ctx context.Context, gen uint64, toy catalog.Toy, snap capability.Snapshot, opts Options) error {
	log := l.logger.With().Str("slug", toy.Slug).Uint64("gen", gen).Logger()
	if !l.current(gen) {
		return nil
	}

	l.lifecycle.RemoveEscapeHandler()
	l.lifecycle.DisposeActive()
	l.starters.Clear()

	back := l.backHandler()
	container := l.view.ShowActiveToy(toy, back)
	l.lifecycle.AttachEscapeHandler(back)
	l.view.SetRendererStatus(view.BadgeFor(snap.Renderer, l.retryHandler(toy.Slug)))
	if opts.PushState && l.commit(gen) {
		l.router.PushToy(toy.Slug)
	}
	l.view.ShowLoading(toy)

	href, err := l.resolver.Resolve(ctx, toy.Module)
	if err != nil {
		return l.fail(gen, toy, ErrResolve(toy.Slug, err), view.HintGeneric, log)
	}
	mod, err := l.importer.Import(ctx, href)
	if err != nil {
		hint := l.importHint(err)
		return l.fail(gen, toy, ErrImport(toy.Slug, href, hint, err), hint, log)
	}
	start, ok := findStart(mod)
	if !ok {
		return l.fail(gen, toy, ErrMissingStart(toy.Slug, href), view.HintGeneric, log)
	}
	if !l.current(gen) {
		log.Debug().Msg("load superseded before start")
		return nil
	}

	result, err := l.runStart(ctx, start, StartArgs{
		Container:    container,
		Slug:         toy.Slug,
		Renderers:    l.renderers,
		Audio:        l.audio,
		Capabilities: snap,
	})
	handle := lifecycle.Normalize(result)
	if !l.current(gen) {
		l.lifecycle.DisposeHandle(handle)
		log.Debug().Msg("load superseded during start, result disposed")
		return nil
	}
	if err != nil {
		l.lifecycle.DisposeHandle(handle)
		return l.fail(gen, toy, ErrStart(toy.Slug, err), l.importHint(err), log)
	}

	if handle != nil {
		l.lifecycle.Adopt(handle)
	}
	l.view.ClearStatus()
	l.agent.ToyLoaded(toy.Slug)
	log.Info().Str("backend", string(snap.Renderer.Backend)).Msg("toy loaded")

	go l.awaitAudioStarter(gen, toy.Slug)
	return nil
}

// runStart calls start, converting a panic into an error.
func (l *Loader) runStart(ctx context.Context, start StartFunc, args StartArgs) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("start panicked: %v", r)
		}
	}()
	return start(ctx, args)
}

func (l *Loader) fail(gen uint64, toy catalog.Toy, err error, hint view.ImportHint, log zerolog.Logger) error {
	if !l.current(gen) {
		log.Debug().Err(err).Msg("superseded load failed")
		return nil
	}
	ev := log.Error().Err(err)
	switch {
	case IsStart(err):
		ev.Msg("toy start failed")
	case IsMissingStart(err):
		ev.Msg("toy module has no start export")
	case IsResolve(err):
		ev.Msg("toy module could not be resolved")
	default:
		ev.Str("hint", string(hint)).Msg("toy import failed")
	}
	l.view.ClearActiveToy()
	l.view.ShowImportError(toy, hint, l.backHandler())
	return err
}

func (l *Loader) importHint(err error) view.ImportHint {
	if loc := l.navigator.Location(); loc != nil && loc.Scheme == "file" {
		return view.HintDevServer
	}
	msg := err.Error()
	if strings.Contains(msg, "MIME type") || strings.Contains(msg, "Failed to load module script") {
		return view.HintMIME
	}
	return view.HintGeneric
}

func (l *Loader) retryHandler(slug string) func() {
	return func() { _ = l.RetryRenderer(l.ctx, slug) }
}

// RetryRenderer probes again with ForceRetry. When WebGPU is now available the
// renderer pool is rebuilt and slug remounted without a history push;
// otherwise the badge shows the new reason.
func (l *Loader) RetryRenderer(ctx context.Context, slug string) error {
	snap := l.prober.Probe(ctx, capability.Options{ForceRetry: true})
	if snap.Renderer.Backend == capability.BackendWebGPU {
		l.logger.Info().Str("slug", slug).Msg("WebGPU available after retry, remounting")
		if l.renderers != nil {
			l.renderers.Reset(true)
		}
		return l.LoadToy(ctx, slug, Options{PushState: false})
	}
	l.logger.Info().Str("slug", slug).Str("reason", snap.Renderer.FallbackReason).Msg("WebGPU retry did not succeed")
	l.view.SetRendererStatus(view.BadgeFor(snap.Renderer, l.retryHandler(slug)))
	return nil
}

// BackToLibrary tears the active toy down and shows the library. The router
// is updated last.
func (l *Loader) BackToLibrary(opts BackOptions) {
	l.begin()
	l.lifecycle.RemoveEscapeHandler()
	l.lifecycle.DisposeActive()
	l.view.ClearActiveToy()
	l.view.ResetRendererStatus()
	if l.audio != nil {
		l.audio.Reset(true)
	}
	l.starters.Clear()
	l.agent.ToyUnloaded()
	l.view.ShowLibrary()
	if opts.UpdateRoute {
		l.router.GoToLibrary()
	}
	l.logger.Info().Bool("update_route", opts.UpdateRoute).Msg("back to library")
}

// InitNavigation binds back/forward navigation once.
func (l *Loader) InitNavigation() {
	l.navOnce.Do(func() {
		unlisten := l.router.Listen(func(r router.Route) {
			if r.View == router.ViewToy && r.Slug != "" {
				_ = l.LoadToy(l.ctx, r.Slug, Options{PushState: false})
				return
			}
			l.BackToLibrary(BackOptions{UpdateRoute: false})
		})
		l.mu.Lock()
		l.unlisten = unlisten
		l.mu.Unlock()
	})
}

// LoadFromQuery loads the toy named in the URL, or shows the library.
func (l *Loader) LoadFromQuery(ctx context.Context) error {
	slug := l.router.CurrentSlug()
	if slug == "" {
		l.view.ShowLibrary()
		return nil
	}
	return l.LoadToy(ctx, slug, Options{PushState: false})
}

// Shutdown disposes the active toy and both pools. It runs on page teardown.
func (l *Loader) Shutdown() {
	l.begin()
	l.cancel()
	l.lifecycle.RemoveEscapeHandler()
	l.lifecycle.DisposeActive()
	if l.audio != nil {
		l.audio.Reset(true)
	}
	if l.renderers != nil {
		l.renderers.Reset(true)
	}
	l.mu.Lock()
	unlisten := l.unlisten
	l.unlisten = nil
	l.mu.Unlock()
	if unlisten != nil {
		unlisten()
	}
	l.logger.Info().Msg("loader shut down")
}

// awaitAudioStarter waits for the mounted toy to register an audio starter and
// then offers the audio sources. Toys that never register get no prompt.
func (l *Loader) awaitAudioStarter(gen uint64, slug string) {
	starter := l.waitForStarter(l.ctx)
	if starter == nil || !l.current(gen) {
		return
	}
	run := func(source audio.Source) func() {
		return func() { l.startAudio(gen, slug, starter, source) }
	}
	l.view.ShowAudioPrompt(view.AudioPrompt{
		Message: "Choose what drives the visuals.",
		Actions: []view.Action{
			{ID: "microphone", Label: "Use microphone", Primary: true, Run: run(audio.SourceMicrophone)},
			{ID: "demo", Label: "Play demo track", Run: run(audio.SourceDemo)},
			{ID: "tab", Label: "Capture tab audio", Run: run(audio.SourceTab)},
		},
	})
}

// waitForStarter returns as soon as a starter is registered, checking at most
// AudioStarterAttempts times AudioStarterDelay apart.
func (l *Loader) waitForStarter(ctx context.Context) AudioStarter {
	ready := l.starters.Ready()
	delay := l.config.AudioStarterDelay()
	for i := 0; i < l.config.AudioStarterAttempts; i++ {
		if fn := l.starters.Current(); fn != nil {
			return fn
		}
		t := time.NewTimer(delay)
		select {
		case <-ready:
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return nil
		}
		t.Stop()
	}
	return l.starters.Current()
}

func (l *Loader) startAudio(gen uint64, slug string, starter AudioStarter, source audio.Source) {
	if !l.current(gen) {
		return
	}
	log := l.logger.With().Str("slug", slug).Str("source", string(source)).Logger()
	if err := starter(l.ctx, source); err != nil {
		log.Warn().Err(err).Msg("audio start failed")
		if l.current(gen) {
			l.view.SetAudioError(audioErrorMessage(source, err))
		}
		return
	}
	log.Info().Msg("audio started")
	if l.current(gen) {
		l.view.ClearAudioPrompt()
	}
}

func audioErrorMessage(source audio.Source, err error) string {
	switch {
	case errors.Is(err, audio.ErrPermissionDenied):
		if source == audio.SourceTab {
			return "Tab capture was cancelled or blocked. Try the microphone or the demo track."
		}
		return "Microphone access was denied. Try the demo track or tab audio instead."
	case errors.Is(err, audio.ErrUnsupported):
		return "This browser can't capture audio. The demo track still works."
	default:
		return "Couldn't start audio: " + err.Error()
	}
}
