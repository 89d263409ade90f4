package agent

import "sync"

// MemoryPublisher records every event it receives, in order.
type MemoryPublisher struct {
	mu  sync.Mutex
	log []Event
}

// NewMemoryPublisher returns an empty recorder.
func NewMemoryPublisher() *MemoryPublisher { return &MemoryPublisher{} }

// Publish appends e to the record.
func (m *MemoryPublisher) Publish(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, e)
}

// Events returns a copy of the recorded events.
func (m *MemoryPublisher) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.log...)
}

// Names returns the recorded event names.
func (m *MemoryPublisher) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.log))
	for _, e := range m.log {
		names = append(names, e.Name)
	}
	return names
}

// Count returns how many events named name were recorded.
func (m *MemoryPublisher) Count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.log {
		if e.Name == name {
			n++
		}
	}
	return n
}
