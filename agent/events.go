package agent

// Event names published by the surface.
const (
	EventToyLoaded    = "toy-loaded"
	EventAudioStarted = "audio-started"
	EventAudioStopped = "audio-stopped"
)

// Event is one notification delivered to automation subscribers. Slug names
// the toy involved, if any; Fields carries extras such as the audio source.
// The JSON form is what window.ToyboxAgent subscribers receive.
type Event struct {
	Name   string         `json:"name"`
	Slug   string         `json:"slug,omitempty"`
	Fields map[string]any `json:"fields,omitempty"`
}

// EventPublisher forwards surface events to an outside sink, such as a test
// recorder or telemetry. Publish is called synchronously from the surface,
// outside its lock.
type EventPublisher interface {
	Publish(Event)
}

type discardPublisher struct{}

func (discardPublisher) Publish(Event) {}
