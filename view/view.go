// Package view holds the toy page's UI state and moves it through explicit
// transitions. Drawing is delegated to a Surface; the view makes no decisions
// beyond what each transition names.
package view

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/simukka/toybox/capability"
	"github.com/simukka/toybox/catalog"
)

// Mode is the top-level screen.
type Mode string

const (
	ModeLibrary Mode = "library"
	ModeToy     Mode = "toy"
)

// StatusKind is the flavour of a status overlay.
type StatusKind string

const (
	StatusLoading StatusKind = "loading"
	StatusError   StatusKind = "error"
	StatusWarning StatusKind = "warning"
)

// ImportHint classifies a failed module import for the message shown.
type ImportHint string

const (
	HintDevServer ImportHint = "dev-server"
	HintMIME      ImportHint = "mime"
	HintGeneric   ImportHint = "generic"
)

// Action is a button on a status, badge or prompt.
type Action struct {
	ID      string
	Label   string
	Primary bool
	Run     func()
}

// Status is the overlay shown over the toy area.
type Status struct {
	Kind    StatusKind
	Title   string
	Message string
	Actions []Action
}

// RendererBadge describes the active rendering backend.
type RendererBadge struct {
	Backend capability.Backend
	Label   string
	Reason  string
	Retry   *Action
}

// AudioPrompt offers the audio sources a toy can start with.
type AudioPrompt struct {
	Message string
	Actions []Action
	Error   string
}

// State is everything the Surface needs to draw the page.
type State struct {
	Mode     Mode
	Status   *Status
	Renderer *RendererBadge
	Toy      *catalog.Toy
	Audio    *AudioPrompt
	// HasBack reports whether a back-to-library handler is registered.
	HasBack bool
}

// Container is the element a toy mounts into.
type Container interface {
	Clear()
}

// Surface draws State. The browser implementation renders DOM; tests record it.
type Surface interface {
	Render(State)
	NewContainer() Container
}

// View owns State and the one back-to-library handler.
type View struct {
	surface Surface
	logger  zerolog.Logger

	mu        sync.Mutex
	state     State
	back      func()
	container Container
}

// New creates a view in library mode.
func New(surface Surface, logger zerolog.Logger) *View {
	return &View{
		surface: surface,
		logger:  logger.With().Str("component", "view").Logger(),
		state:   State{Mode: ModeLibrary},
	}
}

// State returns a copy of the current state.
func (v *View) State() State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

// Container returns the active toy container, or nil.
func (v *View) Container() Container {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.container
}

// update applies fn under the lock and renders the result.
func (v *View) update(transition string, fn func(s *State)) {
	v.mu.Lock()
	fn(&v.state)
	v.state.HasBack = v.back != nil
	s := v.state
	v.mu.Unlock()
	v.logger.Debug().Str("transition", transition).Str("mode", string(s.Mode)).Msg("view updated")
	v.surface.Render(s)
}

func (v *View) setBack(onBack func()) {
	if onBack != nil {
		v.back = onBack
	}
}

// Back runs the registered back handler.
func (v *View) Back() {
	v.mu.Lock()
	fn := v.back
	v.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (v *View) backAction(onBack func()) Action {
	return Action{ID: "back", Label: "Back to library", Run: onBack}
}

// ShowLibrary returns to the library. Any status, toy, prompt and back handler
// are cleared.
func (v *View) ShowLibrary() {
	v.mu.Lock()
	c := v.container
	v.container = nil
	v.back = nil
	v.mu.Unlock()
	if c != nil {
		c.Clear()
	}
	v.update("library", func(s *State) {
		*s = State{Mode: ModeLibrary, Renderer: s.Renderer}
	})
}

// ShowActiveToy switches to toy mode with a fresh container for toy and
// registers onBack as the back handler.
func (v *View) ShowActiveToy(toy catalog.Toy, onBack func()) Container {
	c := v.surface.NewContainer()
	v.mu.Lock()
	old := v.container
	v.container = c
	v.setBack(onBack)
	v.mu.Unlock()
	if old != nil {
		old.Clear()
	}
	v.update("active-toy", func(s *State) {
		s.Mode = ModeToy
		s.Toy = &toy
		s.Status = nil
		s.Audio = nil
	})
	return c
}

// ClearActiveToy empties the toy container and drops the audio prompt.
func (v *View) ClearActiveToy() {
	v.mu.Lock()
	c := v.container
	v.container = nil
	v.mu.Unlock()
	if c != nil {
		c.Clear()
	}
	v.update("clear-toy", func(s *State) {
		s.Toy = nil
		s.Audio = nil
	})
}

func (v *View) showStatus(transition string, toy *catalog.Toy, st Status, onBack func()) {
	v.mu.Lock()
	v.setBack(onBack)
	v.mu.Unlock()
	v.update(transition, func(s *State) {
		s.Mode = ModeToy
		if toy != nil {
			t := *toy
			s.Toy = &t
		}
		s.Status = &st
	})
}

// ShowLoading shows a loading indicator for toy.
func (v *View) ShowLoading(toy catalog.Toy) {
	v.showStatus("loading", &toy, Status{
		Kind:    StatusLoading,
		Title:   "Loading " + displayName(toy) + "…",
		Message: "Preparing the visuals and audio hooks.",
	}, nil)
}

// ShowUnavailable reports an unknown slug.
func (v *View) ShowUnavailable(slug string, onBack func()) {
	v.showStatus("unavailable", nil, Status{
		Kind:    StatusError,
		Title:   "Toy unavailable",
		Message: fmt.Sprintf("We couldn't find a toy named %q. It may have been renamed or removed.", slug),
		Actions: []Action{v.backAction(onBack)},
	}, onBack)
}

// ShowCapabilityError blocks toy because its rendering needs are not met.
func (v *View) ShowCapabilityError(toy catalog.Toy, snap capability.Snapshot, onBack func()) {
	title := displayName(toy) + " needs WebGPU"
	if snap.Renderer.Backend == capability.BackendNone {
		title = "Graphics acceleration unavailable"
	}
	v.showStatus("capability-error", &toy, Status{
		Kind:    StatusError,
		Title:   title,
		Message: capabilityMessage(snap),
		Actions: []Action{v.backAction(onBack)},
	}, onBack)
}

// ShowFallbackWarning lets the user run toy on the WebGL fallback.
func (v *View) ShowFallbackWarning(toy catalog.Toy, snap capability.Snapshot, onContinue, onBack func()) {
	v.showStatus("fallback-warning", &toy, Status{
		Kind:    StatusWarning,
		Title:   "WebGPU not available",
		Message: capabilityMessage(snap) + " " + displayName(toy) + " can run in WebGL with reduced effects.",
		Actions: []Action{
			{ID: "continue", Label: "Continue with WebGL", Primary: true, Run: onContinue},
			v.backAction(onBack),
		},
	}, onBack)
}

// ShowImportError reports a failed import or start of toy.
func (v *View) ShowImportError(toy catalog.Toy, hint ImportHint, onBack func()) {
	var msg string
	switch hint {
	case HintDevServer:
		msg = "Toys are loaded as ES modules, which browsers block on file:// pages. Start the dev server and open the page from http://localhost."
	case HintMIME:
		msg = "The server sent the toy's script with the wrong MIME type. Serve .js and .ts files as text/javascript."
	default:
		msg = "Something went wrong while starting this toy. Try again or pick another one."
	}
	v.showStatus("import-error", &toy, Status{
		Kind:    StatusError,
		Title:   "Couldn't load " + displayName(toy),
		Message: msg,
		Actions: []Action{v.backAction(onBack)},
	}, onBack)
}

// ClearStatus removes the status overlay.
func (v *View) ClearStatus() {
	v.update("clear-status", func(s *State) { s.Status = nil })
}

// SetRendererStatus shows the renderer badge.
func (v *View) SetRendererStatus(b RendererBadge) {
	v.update("renderer-status", func(s *State) { s.Renderer = &b })
}

// ResetRendererStatus hides the renderer badge.
func (v *View) ResetRendererStatus() {
	v.update("renderer-reset", func(s *State) { s.Renderer = nil })
}

// ShowAudioPrompt shows the audio source picker.
func (v *View) ShowAudioPrompt(p AudioPrompt) {
	v.update("audio-prompt", func(s *State) { s.Audio = &p })
}

// SetAudioError shows msg inside the audio prompt.
func (v *View) SetAudioError(msg string) {
	v.update("audio-error", func(s *State) {
		p := AudioPrompt{}
		if s.Audio != nil {
			p = *s.Audio
		}
		p.Error = msg
		s.Audio = &p
	})
}

// ClearAudioPrompt hides the audio source picker.
func (v *View) ClearAudioPrompt() {
	v.update("audio-cleared", func(s *State) { s.Audio = nil })
}

// BadgeFor describes the backend in snap for the renderer badge.
func BadgeFor(info capability.RendererInfo, onRetry func()) RendererBadge {
	b := RendererBadge{Backend: info.Backend, Reason: info.FallbackReason}
	switch info.Backend {
	case capability.BackendWebGPU:
		b.Label = "WebGPU"
	case capability.BackendWebGL:
		b.Label = "WebGL"
		if info.IsFallback() {
			b.Label = "WebGL (fallback)"
		}
	default:
		b.Label = "No renderer"
	}
	if info.ShouldRetry && onRetry != nil {
		b.Retry = &Action{ID: "retry-webgpu", Label: "Try WebGPU again", Run: onRetry}
	}
	return b
}

func displayName(toy catalog.Toy) string {
	if toy.Title != "" {
		return toy.Title
	}
	return toy.Slug
}

func capabilityMessage(snap capability.Snapshot) string {
	parts := make([]string, 0, len(snap.BlockingIssues)+1)
	parts = append(parts, snap.BlockingIssues...)
	if snap.Renderer.FallbackReason != "" {
		parts = append(parts, snap.Renderer.FallbackReason)
	}
	if len(parts) == 0 {
		return "This device can't run the required renderer."
	}
	return strings.Join(dedupe(parts), " ")
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
