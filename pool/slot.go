// Package pool provides a single-slot, reference-counted holder for an
// expensive resource such as a GPU renderer or a microphone stream.
package pool

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ErrReset is returned to waiters whose in-flight creation was abandoned by Reset.
var ErrReset = errors.New("pool: slot was reset during creation")

// Policy decides what happens when the last reference is released.
type Policy int

const (
	// KeepWarm keeps the idle resource for the next acquirer.
	KeepWarm Policy = iota
	// ReleaseWhenIdle destroys the resource as soon as nobody holds it.
	ReleaseWhenIdle
)

// Slot holds at most one live resource of type T.
type Slot[T any] struct {
	create  func(ctx context.Context) (T, error)
	destroy func(T)
	policy  Policy

	group singleflight.Group
	mu    sync.Mutex
	value T
	live  bool
	refs  int
	epoch uint64
}

// NewSlot creates an empty slot. destroy may be nil.
func NewSlot[T any](policy Policy, create func(ctx context.Context) (T, error), destroy func(T)) *Slot[T] {
	if destroy == nil {
		destroy = func(T) {}
	}
	return &Slot[T]{create: create, destroy: destroy, policy: policy}
}

// Acquire returns the live resource and takes a reference on it, creating the
// resource when the slot is empty. Concurrent acquirers of an empty slot share
// a single creation. A failed creation leaves the slot empty.
func (s *Slot[T]) Acquire(ctx context.Context) (T, error) {
	s.mu.Lock()
	if s.live {
		s.refs++
		v := s.value
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	for {
		_, err, _ := s.group.Do("create", func() (interface{}, error) {
			s.mu.Lock()
			if s.live {
				s.mu.Unlock()
				return nil, nil
			}
			epoch := s.epoch
			s.mu.Unlock()

			v, err := s.create(ctx)
			if err != nil {
				return nil, err
			}

			s.mu.Lock()
			defer s.mu.Unlock()
			if s.epoch != epoch {
				s.destroy(v)
				return nil, ErrReset
			}
			s.value = v
			s.live = true
			return nil, nil
		})
		if err != nil {
			var zero T
			return zero, err
		}

		s.mu.Lock()
		if s.live {
			s.refs++
			v := s.value
			s.mu.Unlock()
			return v, nil
		}
		s.mu.Unlock()
		// Reset or a ReleaseWhenIdle teardown emptied the slot between
		// creation and our reference; try again.
		if err := ctx.Err(); err != nil {
			var zero T
			return zero, err
		}
	}
}

// Release drops one reference. When the count reaches zero and the policy is
// ReleaseWhenIdle the resource is destroyed. It returns true when the caller
// released the last reference.
func (s *Slot[T]) Release() bool {
	s.mu.Lock()
	if !s.live || s.refs == 0 {
		s.mu.Unlock()
		return false
	}
	s.refs--
	if s.refs > 0 {
		s.mu.Unlock()
		return false
	}
	if s.policy != ReleaseWhenIdle {
		s.mu.Unlock()
		return true
	}
	v := s.value
	s.clearLocked()
	s.mu.Unlock()
	s.destroy(v)
	return true
}

// Reset empties the slot regardless of outstanding references, destroying the
// resource when dispose is true. An in-flight creation is discarded.
func (s *Slot[T]) Reset(dispose bool) {
	s.mu.Lock()
	s.epoch++
	if !s.live {
		s.mu.Unlock()
		return
	}
	v := s.value
	s.clearLocked()
	s.mu.Unlock()
	if dispose {
		s.destroy(v)
	}
}

func (s *Slot[T]) clearLocked() {
	var zero T
	s.value = zero
	s.live = false
	s.refs = 0
}

// Refs returns the current reference count.
func (s *Slot[T]) Refs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refs
}

// Live reports whether the slot holds a resource.
func (s *Slot[T]) Live() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live
}

// Peek returns the resource without taking a reference.
func (s *Slot[T]) Peek() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.live
}
