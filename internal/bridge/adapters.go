package bridge

import (
	"context"
	"sync"

	"github.com/cryguy/jshost/internal/channel"
)

// Journal directions.
const (
	DirectionTX      = "tx"
	DirectionRX      = "rx"
	DirectionOneshot = "oneshot"
)

// sendAdapter forwards the first script argument onto a queue.
type sendAdapter[T any] struct {
	b    *Bridge
	name string
	tx   *channel.Sender[T]
}

func (a *sendAdapter[T]) Invoke(_ context.Context, args Args) <-chan Result {
	var v T
	if err := args.Decode(0, &v); err != nil {
		return Rejected(err)
	}
	if err := a.tx.Send(v); err != nil {
		return Rejected(err)
	}
	a.b.record(DirectionTX, a.name, v)
	return Resolved(nil)
}

// RegisterSender installs name as a send adapter over tx. The promise
// resolves once the value is queued and rejects with channel.ErrClosed when
// the receiving end is gone.
func RegisterSender[T any](b *Bridge, name string, tx *channel.Sender[T]) error {
	return b.Register(name, &sendAdapter[T]{b: b, name: name, tx: tx})
}

// recvAdapter awaits the next queued value. Calls are chained so that
// overlapping invocations take values in call order, one at a time.
type recvAdapter[T any] struct {
	b    *Bridge
	name string
	rx   *channel.Receiver[T]

	mu   sync.Mutex
	tail chan struct{}
}

func (a *recvAdapter[T]) Invoke(ctx context.Context, _ Args) <-chan Result {
	out := make(chan Result, 1)

	a.mu.Lock()
	prev := a.tail
	next := make(chan struct{})
	a.tail = next
	a.mu.Unlock()

	go func() {
		defer close(next)
		defer a.b.recoverInto(a.name, out)
		if prev != nil {
			select {
			case <-prev:
			case <-ctx.Done():
				out <- Result{Err: ctx.Err()}
				return
			}
		}
		v, err := a.rx.Recv(ctx)
		if err != nil {
			out <- Result{Err: err}
			return
		}
		a.b.record(DirectionRX, a.name, v)
		out <- Result{Value: v}
	}()
	return out
}

// RegisterReceiver installs name as a receive adapter over rx. The promise
// resolves with the next value and rejects with channel.ErrClosed once every
// sender is gone and the queue is empty.
func RegisterReceiver[T any](b *Bridge, name string, rx *channel.Receiver[T]) error {
	return b.Register(name, &recvAdapter[T]{b: b, name: name, rx: rx})
}

// oneshotAdapter fires a one-shot signal with the first script argument.
type oneshotAdapter[T any] struct {
	b    *Bridge
	name string
	tx   *channel.OneshotSender[T]
}

func (a *oneshotAdapter[T]) Invoke(_ context.Context, args Args) <-chan Result {
	if a.tx.Fired() {
		return Rejected(channel.ErrAlreadyResolved)
	}
	var v T
	if err := args.Decode(0, &v); err != nil {
		return Rejected(err)
	}
	if err := a.tx.Send(v); err != nil {
		return Rejected(err)
	}
	a.b.record(DirectionOneshot, a.name, v)
	return Resolved(nil)
}

// RegisterOneshot installs name as a one-shot adapter over tx. The first
// call fires the signal; later calls reject with channel.ErrAlreadyResolved.
func RegisterOneshot[T any](b *Bridge, name string, tx *channel.OneshotSender[T]) error {
	return b.Register(name, &oneshotAdapter[T]{b: b, name: name, tx: tx})
}
