package agent

import (
	"reflect"
	"testing"
)

func TestSurface_StateAndEvents(t *testing.T) {
	pub := NewMemoryPublisher()
	s := NewSurface(WithPublisher(pub))

	s.ToyLoaded("spiral")
	s.AudioStarted("microphone")
	if got := s.State(); got != (State{CurrentToy: "spiral", ToyLoaded: true, AudioActive: true, AudioSource: "microphone"}) {
		t.Errorf("Unexpected state %+v", got)
	}

	s.AudioStopped()
	s.AudioStopped()
	s.ToyUnloaded()
	if got := s.State(); got != (State{}) {
		t.Errorf("Expected empty state, got %+v", got)
	}

	want := []string{EventToyLoaded, EventAudioStarted, EventAudioStopped}
	if got := pub.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Events = %v, want %v", got, want)
	}
	if src := pub.Events()[1].Fields["source"]; src != "microphone" {
		t.Errorf("Expected source field, got %v", src)
	}
	if n := pub.Count(EventAudioStopped); n != 1 {
		t.Errorf("Expected one audio-stopped for a repeated stop, got %d", n)
	}
}

func TestSurface_Subscribe(t *testing.T) {
	s := NewSurface()
	var loaded []string
	unsubscribe := s.Subscribe(EventToyLoaded, func(e Event) { loaded = append(loaded, e.Slug) })
	s.Subscribe(EventAudioStarted, func(Event) { t.Errorf("wrong event delivered") })

	s.ToyLoaded("a")
	unsubscribe()
	s.ToyLoaded("b")

	if !reflect.DeepEqual(loaded, []string{"a"}) {
		t.Errorf("Expected only the first load, got %v", loaded)
	}
}

func TestSurface_SubscriberPanicIsContained(t *testing.T) {
	s := NewSurface()
	calls := 0
	s.Subscribe(EventToyLoaded, func(Event) { panic("automation bug") })
	s.Subscribe(EventToyLoaded, func(Event) { calls++ })

	s.ToyLoaded("grid")
	if calls != 1 {
		t.Errorf("Expected healthy subscriber to run, got %d", calls)
	}
}

func TestSurface_Reset(t *testing.T) {
	s := NewSurface()
	fired := false
	s.Subscribe(EventToyLoaded, func(Event) { fired = true })
	s.ToyLoaded("grid")
	fired = false

	s.Reset()
	s.ToyLoaded("grid")
	if fired {
		t.Errorf("Reset should drop subscribers")
	}
}
