package lifecycle

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

type fakeKeyboard struct {
	handlers map[int]func()
	next     int
}

func (k *fakeKeyboard) OnEscape(fn func()) func() {
	if k.handlers == nil {
		k.handlers = map[int]func(){}
	}
	id := k.next
	k.next++
	k.handlers[id] = fn
	return func() { delete(k.handlers, id) }
}

func (k *fakeKeyboard) press() {
	for _, fn := range k.handlers {
		fn()
	}
}

type closer struct{ closed int }

func (c *closer) Dispose() { c.closed++ }

type failingCloser struct{}

func (failingCloser) Dispose() error { return errors.New("gpu lost") }

type plainToy struct{ Name string }

func TestNormalize(t *testing.T) {
	calls := 0
	fn := func() { calls++ }
	var nilFn func()
	var nilPtr *plainToy

	tests := []struct {
		name      string
		candidate any
		wantNil   bool
	}{
		{"nil", nil, true},
		{"string", "running", true},
		{"number", 42, true},
		{"bool", true, true},
		{"typed nil func", nilFn, true},
		{"typed nil pointer", nilPtr, true},
		{"bare function", fn, false},
		{"function returning error", func() error { return nil }, false},
		{"disposer", &closer{}, false},
		{"error disposer", failingCloser{}, false},
		{"plain pointer", &plainToy{Name: "grid"}, false},
		{"plain struct", plainToy{}, false},
		{"map", map[string]any{"scene": 1}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := Normalize(tt.candidate)
			if (h == nil) != tt.wantNil {
				t.Fatalf("Normalize(%v) nil = %v, want %v", tt.candidate, h == nil, tt.wantNil)
			}
			if h != nil {
				if err := h.Dispose(); err != nil && tt.name != "error disposer" {
					t.Errorf("Unexpected dispose error: %v", err)
				}
			}
		})
	}
	if calls != 1 {
		t.Errorf("Expected bare function to be called once, got %d", calls)
	}
}

func TestHandle_DisposeRunsOnce(t *testing.T) {
	c := &closer{}
	h := Normalize(c)
	_ = h.Dispose()
	_ = h.Dispose()
	if c.closed != 1 {
		t.Errorf("Expected dispose once, got %d", c.closed)
	}
	if h.Ref != c {
		t.Errorf("Expected Ref to keep the original value")
	}
}

func TestHandle_DisposeRecoversPanic(t *testing.T) {
	h := Normalize(func() { panic("scene already torn down") })
	err := h.Dispose()
	if err == nil || !strings.Contains(err.Error(), "scene already torn down") {
		t.Errorf("Expected panic converted to error, got %v", err)
	}
}

func TestAdoptAndDisposeActive(t *testing.T) {
	l := New(nil, zerolog.Nop())
	c := &closer{}

	h := l.Adopt(c)
	if l.Active() != h {
		t.Fatalf("Expected adopted handle to be active")
	}
	if l.Adopt("not a toy") != nil {
		t.Errorf("Expected scalar candidate to be dropped")
	}
	if l.Active() != h {
		t.Errorf("Dropped candidate must not replace the holder")
	}

	l.DisposeActive()
	if c.closed != 1 || l.Active() != nil {
		t.Errorf("Expected disposed and empty, closed=%d active=%v", c.closed, l.Active())
	}
	l.DisposeActive()
}

// TestDisposeActive_SwallowsFailures tests that cleanup errors never propagate
func TestDisposeActive_SwallowsFailures(t *testing.T) {
	var buf bytes.Buffer
	l := New(nil, zerolog.New(&buf))

	l.Adopt(failingCloser{})
	l.DisposeActive()
	l.Adopt(func() { panic("boom") })
	l.DisposeActive()

	if l.Active() != nil {
		t.Errorf("Expected empty lifecycle after failed disposals")
	}
	out := buf.String()
	if strings.Count(out, `"level":"warn"`) != 2 {
		t.Errorf("Expected two warnings, got %s", out)
	}
	if !strings.Contains(out, "gpu lost") || !strings.Contains(out, `"component":"lifecycle"`) {
		t.Errorf("Expected failure details in log, got %s", out)
	}
}

func TestUnregister_OnlyCurrentHolder(t *testing.T) {
	l := New(nil, zerolog.Nop())
	old := l.Adopt(&closer{})
	cur := l.Adopt(&closer{})

	if l.Unregister(old) {
		t.Errorf("Stale handle must not unregister the current holder")
	}
	if l.Active() != cur {
		t.Errorf("Expected current holder to survive")
	}
	if !l.Unregister(cur) || l.Active() != nil {
		t.Errorf("Expected current holder to unregister")
	}
	if l.Unregister(nil) {
		t.Errorf("Unregister(nil) should be false")
	}
}

func TestEscapeHandler_ReplacedNotStacked(t *testing.T) {
	k := &fakeKeyboard{}
	l := New(k, zerolog.Nop())

	first, second := 0, 0
	l.AttachEscapeHandler(func() { first++ })
	l.AttachEscapeHandler(func() { second++ })
	if len(k.handlers) != 1 {
		t.Fatalf("Expected one Escape listener, got %d", len(k.handlers))
	}
	k.press()
	if first != 0 || second != 1 {
		t.Errorf("Expected only latest handler, got first=%d second=%d", first, second)
	}

	l.RemoveEscapeHandler()
	l.RemoveEscapeHandler()
	if len(k.handlers) != 0 {
		t.Errorf("Expected listener removed")
	}
}

func TestReset(t *testing.T) {
	k := &fakeKeyboard{}
	l := New(k, zerolog.Nop())
	c := &closer{}
	l.Adopt(c)
	l.AttachEscapeHandler(func() {})

	l.Reset()
	if l.Active() != nil || len(k.handlers) != 0 {
		t.Errorf("Expected empty state after Reset")
	}
	if c.closed != 0 {
		t.Errorf("Reset must not dispose")
	}
}
