package feed

import (
	"fmt"
	"sync"

	"github.com/cryguy/jshost/internal/channel"
	"github.com/hashicorp/go-hclog"
	"github.com/robfig/cron/v3"
)

// Ticker sends "SEND [n]" onto a queue on a cron schedule, counting from 0.
type Ticker struct {
	c     *cron.Cron
	tx    *channel.Sender[string]
	log   hclog.Logger
	limit int

	mu      sync.Mutex
	n       int
	stopped bool
}

// NewTicker creates a ticker for spec (any robfig/cron spec, e.g.
// "@every 2s"). After limit messages the queue is closed; 0 means never.
func NewTicker(spec string, limit int, tx *channel.Sender[string], logger hclog.Logger) (*Ticker, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	t := &Ticker{c: cron.New(), tx: tx, log: logger, limit: limit}
	if _, err := t.c.AddFunc(spec, t.tick); err != nil {
		return nil, fmt.Errorf("ticker schedule %q: %w", spec, err)
	}
	return t, nil
}

// tick sends the next message. A dropped receiver stops the ticker.
func (t *Ticker) tick() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	msg := fmt.Sprintf("SEND [%d]", t.n)
	t.n++
	last := t.limit > 0 && t.n >= t.limit
	t.mu.Unlock()

	if err := t.tx.Send(msg); err != nil {
		t.log.Warn("tick dropped", "message", msg, "error", err)
		go t.Stop()
		return
	}
	t.log.Debug("tick", "message", msg)
	if last {
		go t.Stop()
	}
}

// Sent returns how many messages were produced.
func (t *Ticker) Sent() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.n
}

// Start begins ticking in the background.
func (t *Ticker) Start() {
	t.c.Start()
}

// Stop halts the schedule, waits for a running tick and closes the queue.
// Safe to call more than once.
func (t *Ticker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.mu.Unlock()

	<-t.c.Stop().Done()
	t.tx.Close()
}
