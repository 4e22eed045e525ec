package store

import (
	"sync"
)

// Subscription is a live feed of full snapshots. Each value replaces the
// previous one, so a slow reader only ever sees the latest snapshot. The
// feed never ends on its own: it stops when Close is called, its context
// is cancelled, or the backend reports an error through Err.
type Subscription[T any] struct {
	updates chan T
	done    chan struct{}
	stop    func()

	mu     sync.Mutex
	err    error
	closed bool
	once   sync.Once
}

// NewSubscription creates a subscription. stop releases the backend
// listener and is called exactly once.
func NewSubscription[T any](stop func()) *Subscription[T] {
	if stop == nil {
		stop = func() {}
	}
	return &Subscription[T]{
		updates: make(chan T, 1),
		done:    make(chan struct{}),
		stop:    stop,
	}
}

// Updates returns the snapshot channel. It is closed when the subscription ends.
func (s *Subscription[T]) Updates() <-chan T {
	return s.updates
}

// Done is closed when the subscription ends.
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

// Err returns the error that ended the subscription, if any.
func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Publish delivers a snapshot, replacing one the reader has not taken yet.
// It reports false once the subscription is closed.
func (s *Subscription[T]) Publish(v T) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case <-s.updates:
	default:
	}
	s.updates <- v
	return true
}

// Fail ends the subscription with err.
func (s *Subscription[T]) Fail(err error) {
	s.finish(err)
}

// Close ends the subscription and releases the backend listener.
func (s *Subscription[T]) Close() {
	s.finish(nil)
}

// Closed reports whether the subscription has ended.
func (s *Subscription[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Subscription[T]) finish(err error) {
	s.once.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.err = err
		close(s.updates)
		close(s.done)
		s.mu.Unlock()
		s.stop()
	})
}
