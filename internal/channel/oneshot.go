package channel

import (
	"context"
	"sync"
)

const (
	oneshotEmpty = iota
	oneshotSent
	oneshotDropped
)

type oneshot[T any] struct {
	mu       sync.Mutex
	state    int
	value    T
	rxClosed bool
	done     chan struct{}
}

// OneshotSender fires a one-shot signal at most once.
type OneshotSender[T any] struct {
	o *oneshot[T]
}

// OneshotReceiver waits for a one-shot signal.
type OneshotReceiver[T any] struct {
	o *oneshot[T]
}

// Oneshot creates a single-use completion signal.
func Oneshot[T any]() (*OneshotSender[T], *OneshotReceiver[T]) {
	o := &oneshot[T]{done: make(chan struct{})}
	return &OneshotSender[T]{o: o}, &OneshotReceiver[T]{o: o}
}

// Send fires the signal with v. The sender is consumed by the first call
// whatever its outcome: later calls return ErrAlreadyResolved. If the
// receiver was dropped the first call returns ErrClosed.
func (s *OneshotSender[T]) Send(v T) error {
	o := s.o
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != oneshotEmpty {
		return ErrAlreadyResolved
	}
	if o.rxClosed {
		o.state = oneshotDropped
		close(o.done)
		return ErrClosed
	}
	o.value = v
	o.state = oneshotSent
	close(o.done)
	return nil
}

// Close drops the sender without firing. Waiters get ErrClosed.
func (s *OneshotSender[T]) Close() {
	o := s.o
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == oneshotEmpty {
		o.state = oneshotDropped
		close(o.done)
	}
}

// Fired reports whether the sender has been consumed.
func (s *OneshotSender[T]) Fired() bool {
	s.o.mu.Lock()
	defer s.o.mu.Unlock()
	return s.o.state != oneshotEmpty
}

// Wait blocks until the signal fires or the sender is dropped. Once fired,
// every call returns the same value.
func (r *OneshotReceiver[T]) Wait(ctx context.Context) (T, error) {
	o := r.o
	select {
	case <-o.done:
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == oneshotSent {
		return o.value, nil
	}
	var zero T
	return zero, ErrClosed
}

// Done is closed once the signal fired or the sender was dropped.
func (r *OneshotReceiver[T]) Done() <-chan struct{} {
	return r.o.done
}

// Close drops the receiver; a later Send fails with ErrClosed.
func (r *OneshotReceiver[T]) Close() {
	r.o.mu.Lock()
	defer r.o.mu.Unlock()
	r.o.rxClosed = true
}
