// Package agent exposes toy and audio state to automation and test tooling.
package agent

import (
	"sync"

	"github.com/rs/zerolog"
)

// State is the snapshot read by automation.
type State struct {
	CurrentToy  string `json:"currentToy"`
	ToyLoaded   bool   `json:"toyLoaded"`
	AudioActive bool   `json:"audioActive"`
	AudioSource string `json:"audioSource"`
}

// Surface tracks State and fans events out to subscribers and a publisher.
type Surface struct {
	publisher EventPublisher
	logger    zerolog.Logger

	mu     sync.Mutex
	state  State
	subs   map[string]map[uint64]func(Event)
	nextID uint64
}

// Option customizes a Surface.
type Option func(*Surface)

// WithPublisher forwards every event to p.
func WithPublisher(p EventPublisher) Option {
	return func(s *Surface) {
		if p != nil {
			s.publisher = p
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Surface) { s.logger = l.With().Str("component", "agent").Logger() }
}

// NewSurface creates an empty surface.
func NewSurface(opts ...Option) *Surface {
	s := &Surface{
		publisher: discardPublisher{},
		logger:    zerolog.Nop(),
		subs:      make(map[string]map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current snapshot.
func (s *Surface) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ToyLoaded records slug as mounted and publishes EventToyLoaded.
func (s *Surface) ToyLoaded(slug string) {
	s.mu.Lock()
	s.state.CurrentToy = slug
	s.state.ToyLoaded = true
	s.mu.Unlock()
	s.emit(Event{Name: EventToyLoaded, Slug: slug})
}

// ToyUnloaded clears the toy. No event is published.
func (s *Surface) ToyUnloaded() {
	s.mu.Lock()
	s.state.CurrentToy = ""
	s.state.ToyLoaded = false
	s.mu.Unlock()
}

// AudioStarted records an active audio source.
func (s *Surface) AudioStarted(source string) {
	s.mu.Lock()
	s.state.AudioActive = true
	s.state.AudioSource = source
	slug := s.state.CurrentToy
	s.mu.Unlock()
	s.emit(Event{Name: EventAudioStarted, Slug: slug, Fields: map[string]any{"source": source}})
}

// AudioStopped records that no audio is playing.
func (s *Surface) AudioStopped() {
	s.mu.Lock()
	wasActive := s.state.AudioActive
	s.state.AudioActive = false
	s.state.AudioSource = ""
	slug := s.state.CurrentToy
	s.mu.Unlock()
	if wasActive {
		s.emit(Event{Name: EventAudioStopped, Slug: slug})
	}
}

// Subscribe calls fn for each event named name until unsubscribe is called.
func (s *Surface) Subscribe(name string, fn func(Event)) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	if s.subs[name] == nil {
		s.subs[name] = make(map[uint64]func(Event))
	}
	s.subs[name][id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.subs[name], id)
	}
}

// Reset clears state and drops subscribers.
func (s *Surface) Reset() {
	s.mu.Lock()
	s.state = State{}
	s.subs = make(map[string]map[uint64]func(Event))
	s.mu.Unlock()
}

func (s *Surface) emit(e Event) {
	s.mu.Lock()
	fns := make([]func(Event), 0, len(s.subs[e.Name]))
	for _, fn := range s.subs[e.Name] {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	s.logger.Debug().Str("event", e.Name).Str("slug", e.Slug).Msg("agent event")
	s.publisher.Publish(e)
	for _, fn := range fns {
		s.call(fn, e)
	}
}

func (s *Surface) call(fn func(Event), e Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Warn().Interface("panic", r).Str("event", e.Name).Msg("agent subscriber panicked")
		}
	}()
	fn(e)
}
