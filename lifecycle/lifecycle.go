// Package lifecycle tracks the single active toy and the global Escape shortcut.
package lifecycle

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Handle is a normalized toy instance: the original value plus its disposer.
type Handle struct {
	Ref any

	mu      sync.Mutex
	dispose func() error
}

// Dispose runs the disposer once. Panics are converted to errors.
func (h *Handle) Dispose() (err error) {
	if h == nil {
		return nil
	}
	h.mu.Lock()
	fn := h.dispose
	h.dispose = nil
	h.mu.Unlock()
	if fn == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("dispose panicked: %v", r)
		}
	}()
	return fn()
}

type disposer interface{ Dispose() }

type errDisposer interface{ Dispose() error }

// Normalize converts a start result into a Handle. Functions and values with a
// Dispose method get a disposer; other pointers, structs, maps and slices are
// kept with a no-op disposer. Nil and scalar values return nil.
func Normalize(candidate any) *Handle {
	switch v := candidate.(type) {
	case nil:
		return nil
	case *Handle:
		return v
	case func():
		if v == nil {
			return nil
		}
		return &Handle{Ref: v, dispose: func() error { v(); return nil }}
	case func() error:
		if v == nil {
			return nil
		}
		return &Handle{Ref: v, dispose: v}
	case errDisposer:
		return &Handle{Ref: v, dispose: v.Dispose}
	case disposer:
		return &Handle{Ref: v, dispose: func() error { v.Dispose(); return nil }}
	}

	rv := reflect.ValueOf(candidate)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		if rv.IsNil() {
			return nil
		}
		return &Handle{Ref: candidate}
	case reflect.Struct:
		return &Handle{Ref: candidate}
	default:
		return nil
	}
}

// Keyboard delivers the global Escape key.
type Keyboard interface {
	OnEscape(fn func()) (remove func())
}

// Lifecycle holds at most one active toy.
type Lifecycle struct {
	keyboard Keyboard
	logger   zerolog.Logger

	mu           sync.Mutex
	active       *Handle
	removeEscape func()
}

// New creates an empty lifecycle. keyboard may be nil.
func New(keyboard Keyboard, logger zerolog.Logger) *Lifecycle {
	return &Lifecycle{
		keyboard: keyboard,
		logger:   logger.With().Str("component", "lifecycle").Logger(),
	}
}

// Adopt normalizes candidate and makes it the active toy. A previous holder is
// replaced without being disposed; callers dispose first. Adopt returns nil and
// leaves the holder unchanged when candidate is not trackable.
func (l *Lifecycle) Adopt(candidate any) *Handle {
	h := Normalize(candidate)
	if h == nil {
		l.logger.Debug().Type("value", candidate).Msg("start result is not disposable, nothing adopted")
		return nil
	}
	l.mu.Lock()
	l.active = h
	l.mu.Unlock()
	return h
}

// Active returns the current holder, or nil.
func (l *Lifecycle) Active() *Handle {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// DisposeActive disposes and clears the active toy. Failures are logged.
func (l *Lifecycle) DisposeActive() {
	l.mu.Lock()
	h := l.active
	l.active = nil
	l.mu.Unlock()
	l.dispose(h)
}

// DisposeHandle disposes h without touching the active holder, for results
// that arrive after their load was superseded.
func (l *Lifecycle) DisposeHandle(h *Handle) {
	l.dispose(h)
}

func (l *Lifecycle) dispose(h *Handle) {
	if h == nil {
		return
	}
	if err := h.Dispose(); err != nil {
		l.logger.Warn().Err(err).Msg("toy dispose failed")
	}
}

// Unregister clears the holder only if it is still h.
func (l *Lifecycle) Unregister(h *Handle) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if h == nil || l.active != h {
		return false
	}
	l.active = nil
	return true
}

// AttachEscapeHandler installs onBack as the one Escape handler, replacing any other.
func (l *Lifecycle) AttachEscapeHandler(onBack func()) {
	l.RemoveEscapeHandler()
	if l.keyboard == nil || onBack == nil {
		return
	}
	remove := l.keyboard.OnEscape(onBack)
	l.mu.Lock()
	l.removeEscape = remove
	l.mu.Unlock()
}

// RemoveEscapeHandler detaches the Escape handler if one is installed.
func (l *Lifecycle) RemoveEscapeHandler() {
	l.mu.Lock()
	remove := l.removeEscape
	l.removeEscape = nil
	l.mu.Unlock()
	if remove != nil {
		remove()
	}
}

// Reset removes the Escape handler and forgets the holder without disposing it.
func (l *Lifecycle) Reset() {
	l.RemoveEscapeHandler()
	l.mu.Lock()
	l.active = nil
	l.mu.Unlock()
}
