// Package channel provides the host-side queue primitives that the bridge
// exposes to script: an unbounded multi-producer/single-consumer queue whose
// ends can each be dropped, and a one-shot completion signal.
package channel

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrClosed is returned when the far end of a queue or signal is gone:
	// sending after the receiver was dropped, or receiving after every
	// sender was dropped and the buffer is empty.
	ErrClosed = errors.New("channel closed")

	// ErrAlreadyResolved is returned by a one-shot sender that already fired.
	ErrAlreadyResolved = errors.New("already resolved")
)

type queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	senders  int
	rxClosed bool
	notify   chan struct{} // closed and replaced on every state change
}

// signal wakes every waiter. Must be called with mu held.
func (q *queue[T]) signal() {
	close(q.notify)
	q.notify = make(chan struct{})
}

// Sender is the producing end of an unbounded queue. Use Clone for
// additional producers; the queue ends once every Sender is closed.
type Sender[T any] struct {
	q      *queue[T]
	closed atomic.Bool
}

// Receiver is the single consuming end of an unbounded queue.
type Receiver[T any] struct {
	q      *queue[T]
	closed atomic.Bool
}

// New creates an unbounded FIFO queue.
func New[T any]() (*Sender[T], *Receiver[T]) {
	q := &queue[T]{senders: 1, notify: make(chan struct{})}
	return &Sender[T]{q: q}, &Receiver[T]{q: q}
}

// Send appends v to the queue. It never blocks. It returns ErrClosed if
// the receiver was dropped or this sender was closed.
func (s *Sender[T]) Send(v T) error {
	if s.closed.Load() {
		return ErrClosed
	}
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.rxClosed {
		return ErrClosed
	}
	q.buf = append(q.buf, v)
	q.signal()
	return nil
}

// Clone returns a new Sender for the same queue. Cloning a closed sender
// returns a closed sender.
func (s *Sender[T]) Clone() *Sender[T] {
	c := &Sender[T]{q: s.q}
	if s.closed.Load() {
		c.closed.Store(true)
		return c
	}
	s.q.mu.Lock()
	s.q.senders++
	s.q.mu.Unlock()
	return c
}

// Close drops this sender. Closing twice is a no-op.
func (s *Sender[T]) Close() {
	if s.closed.Swap(true) {
		return
	}
	q := s.q
	q.mu.Lock()
	defer q.mu.Unlock()
	q.senders--
	if q.senders == 0 {
		q.signal()
	}
}

// ReceiverClosed reports whether the consuming end was dropped.
func (s *Sender[T]) ReceiverClosed() bool {
	s.q.mu.Lock()
	defer s.q.mu.Unlock()
	return s.q.rxClosed
}

// Recv waits for the next value. It returns ErrClosed once every sender is
// closed and the buffer is drained, or ctx.Err() if ctx ends first.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	if r.closed.Load() {
		return zero, ErrClosed
	}
	q := r.q
	for {
		q.mu.Lock()
		if len(q.buf) > 0 {
			v := q.buf[0]
			q.buf[0] = zero
			q.buf = q.buf[1:]
			q.mu.Unlock()
			return v, nil
		}
		if q.senders == 0 {
			q.mu.Unlock()
			return zero, ErrClosed
		}
		wait := q.notify
		q.mu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// TryRecv returns the next value without waiting. ok is false when the
// buffer is empty; err is ErrClosed when the queue has ended.
func (r *Receiver[T]) TryRecv() (v T, ok bool, err error) {
	if r.closed.Load() {
		return v, false, ErrClosed
	}
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.buf) > 0 {
		v = q.buf[0]
		var zero T
		q.buf[0] = zero
		q.buf = q.buf[1:]
		return v, true, nil
	}
	if q.senders == 0 {
		return v, false, ErrClosed
	}
	return v, false, nil
}

// Len returns the number of buffered values.
func (r *Receiver[T]) Len() int {
	r.q.mu.Lock()
	defer r.q.mu.Unlock()
	return len(r.q.buf)
}

// Close drops the receiver. Buffered values are discarded and further
// sends fail with ErrClosed.
func (r *Receiver[T]) Close() {
	if r.closed.Swap(true) {
		return
	}
	q := r.q
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rxClosed = true
	q.buf = nil
	q.signal()
}
