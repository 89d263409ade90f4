package loader

import (
	"context"
	"sync"

	"github.com/simukka/toybox/audio"
)

// AudioStarter starts a mounted toy's audio from source.
type AudioStarter func(ctx context.Context, source audio.Source) error

// StarterRegistry is where a mounted toy publishes its audio starter.
type StarterRegistry interface {
	// Ready is closed once a starter is registered.
	Ready() <-chan struct{}
	Current() AudioStarter
	Clear()
}

// Starters is the in-memory StarterRegistry. Toys call Register once their
// audio graph can be started.
type Starters struct {
	mu    sync.Mutex
	fn    AudioStarter
	ready chan struct{}
}

// NewStarters creates an empty registry.
func NewStarters() *Starters {
	return &Starters{ready: make(chan struct{})}
}

// Register publishes fn and wakes anyone waiting on Ready.
func (s *Starters) Register(fn AudioStarter) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	first := s.fn == nil
	s.fn = fn
	if first {
		close(s.ready)
	}
}

// Ready implements StarterRegistry.
func (s *Starters) Ready() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Current implements StarterRegistry.
func (s *Starters) Current() AudioStarter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fn
}

// Clear forgets the starter of the previous toy.
func (s *Starters) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fn != nil {
		s.fn = nil
		s.ready = make(chan struct{})
	}
}
