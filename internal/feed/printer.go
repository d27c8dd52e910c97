package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cryguy/jshost/internal/channel"
	"github.com/hashicorp/go-hclog"
)

// Printer consumes a queue, writing each message as "RX Msg: <m>".
type Printer struct {
	W   io.Writer
	Log hclog.Logger

	// Next, if set, receives each message after it is printed.
	Next func(ctx context.Context, msg string) error
}

// Run consumes rx until it is closed or ctx ends. Closure prints
// "[-] RX Channel Closed" and returns nil.
func (p *Printer) Run(ctx context.Context, rx *channel.Receiver[string]) error {
	log := p.Log
	if log == nil {
		log = hclog.NewNullLogger()
	}
	for {
		msg, err := rx.Recv(ctx)
		if errors.Is(err, channel.ErrClosed) {
			fmt.Fprintln(p.W, "[-] RX Channel Closed")
			return nil
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(p.W, "RX Msg: %s\n", msg)
		if p.Next != nil {
			if err := p.Next(ctx, msg); err != nil {
				log.Warn("forwarding message failed", "error", err)
			}
		}
	}
}

// AwaitOneshot waits up to timeout for rx and describes the outcome: the
// value, "Oneshot Err: <err>" or "Timeout".
func AwaitOneshot(ctx context.Context, rx *channel.OneshotReceiver[string], timeout time.Duration) string {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	v, err := rx.Wait(ctx)
	switch {
	case err == nil:
		return v
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	default:
		return "Oneshot Err: " + err.Error()
	}
}
