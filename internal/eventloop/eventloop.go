package eventloop

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cryguy/jshost/internal/core"
	"github.com/hashicorp/go-hclog"
)

// Completion is the outcome of a pending bridge call. The value is already
// encoded as JSON on the goroutine that produced it, so the event loop only
// passes strings to JS.
type Completion struct {
	ValueJSON string // empty means undefined
	Err       error
}

// readyCall is a completion waiting to be delivered on the JS goroutine.
type readyCall struct {
	id string
	c  Completion
}

// timer is the Go side of a script timer; the callback stays in JS.
type timer struct {
	id    int
	due   time.Time
	every time.Duration
}

// EventLoop manages Go-backed timers for setTimeout/setInterval and
// pending bridge calls whose results must be delivered on the JS
// goroutine. It never touches the runtime from another goroutine: producers
// only append to the ready list and wake the loop.
type EventLoop struct {
	mu          sync.Mutex
	timers      map[int]*timer
	nextID      int
	minInterval time.Duration
	inflight    int
	generation  int
	ready       []readyCall
	wake        chan struct{}
	log         hclog.Logger

	// OnError receives exceptions thrown by timer callbacks and promise
	// settlement. Nil means log only.
	OnError func(error)
}

// New creates a new EventLoop. Intervals shorter than minInterval are
// raised to it.
func New(minInterval time.Duration, logger hclog.Logger) *EventLoop {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &EventLoop{
		timers:      make(map[int]*timer),
		minInterval: minInterval,
		wake:        make(chan struct{}, 1),
		log:         logger,
	}
}

func (el *EventLoop) notify() {
	select {
	case el.wake <- struct{}{}:
	default:
	}
}

// RegisterTimer schedules a timer and returns its id. Repeating timers
// never run more often than the loop's minimum interval.
func (el *EventLoop) RegisterTimer(delay time.Duration, repeat bool) int {
	delay = max(delay, 0)
	if repeat {
		delay = max(delay, el.minInterval)
	}

	el.mu.Lock()
	defer el.mu.Unlock()
	el.nextID++
	t := &timer{id: el.nextID, due: time.Now().Add(delay)}
	if repeat {
		t.every = delay
	}
	el.timers[t.id] = t
	el.notify()
	return t.id
}

// ClearTimer cancels a timer. Unknown ids are ignored.
func (el *EventLoop) ClearTimer(id int) {
	el.mu.Lock()
	delete(el.timers, id)
	el.mu.Unlock()
}

// AddPending registers a bridge call whose single Completion will arrive on
// ch. The result is queued for delivery by RunOnce.
func (el *EventLoop) AddPending(id string, ch <-chan Completion) {
	el.mu.Lock()
	el.inflight++
	gen := el.generation
	el.mu.Unlock()

	go func() {
		c, ok := <-ch
		if !ok {
			c = Completion{Err: fmt.Errorf("call %s abandoned", id)}
		}
		el.mu.Lock()
		defer el.mu.Unlock()
		if gen != el.generation {
			return
		}
		el.ready = append(el.ready, readyCall{id: id, c: c})
		el.notify()
	}()
}

// Complete queues a result that is already available, so the next Settle
// or RunOnce delivers it without a goroutine hop.
func (el *EventLoop) Complete(id string, c Completion) {
	el.mu.Lock()
	el.inflight++
	el.ready = append(el.ready, readyCall{id: id, c: c})
	el.mu.Unlock()
	el.notify()
}

// Settle delivers completed bridge calls without firing timers. Must be
// called on the goroutine that owns rt. Returns true if any were delivered.
func (el *EventLoop) Settle(rt core.JSRuntime) bool {
	return el.deliverReady(rt)
}

// Inflight returns the number of bridge calls not yet delivered to JS.
func (el *EventLoop) Inflight() int {
	el.mu.Lock()
	defer el.mu.Unlock()
	return el.inflight
}

// deliverReady settles every completed bridge call. Returns true if any
// call was delivered.
func (el *EventLoop) deliverReady(rt core.JSRuntime) bool {
	el.mu.Lock()
	if len(el.ready) == 0 {
		el.mu.Unlock()
		return false
	}
	ready := el.ready
	el.ready = nil
	el.inflight -= len(ready)
	el.mu.Unlock()

	for _, r := range ready {
		var js string
		if r.c.Err != nil {
			js = fmt.Sprintf(`globalThis.__bridgeSettle(%s, false, %s)`,
				core.JsEscape(r.id), core.JsEscape(r.c.Err.Error()))
		} else {
			js = fmt.Sprintf(`globalThis.__bridgeSettle(%s, true, %s)`,
				core.JsEscape(r.id), core.JsEscape(r.c.ValueJSON))
		}
		if err := rt.Eval(js); err != nil {
			el.report(fmt.Errorf("settling call %s: %w", r.id, err))
		}
		// Microtask checkpoint after each settlement.
		rt.RunMicrotasks()
	}
	return true
}

// dueTimers returns the IDs of timers whose deadline has passed, in firing
// order, rescheduling intervals and removing one-shot timers.
func (el *EventLoop) dueTimers(now time.Time) []int {
	el.mu.Lock()
	defer el.mu.Unlock()
	var due []*timer
	for _, t := range el.timers {
		if !t.due.After(now) {
			due = append(due, t)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].due.Equal(due[j].due) {
			return due[i].id < due[j].id
		}
		return due[i].due.Before(due[j].due)
	})
	ids := make([]int, len(due))
	for i, t := range due {
		ids[i] = t.id
		if t.every > 0 {
			t.due = now.Add(t.every)
		} else {
			delete(el.timers, t.id)
		}
	}
	return ids
}

func (el *EventLoop) fireTimer(rt core.JSRuntime, id int) {
	if err := rt.Eval(fmt.Sprintf("globalThis.__timerFire(%d)", id)); err != nil {
		el.report(fmt.Errorf("timer %d: %w", id, err))
	}
}

func (el *EventLoop) report(err error) {
	el.log.Error("uncaught exception", "error", err)
	if el.OnError != nil {
		el.OnError(err)
	}
}

// RunOnce delivers every completed bridge call and fires every due timer.
// Must be called on the goroutine that owns rt. Returns true if any JS ran.
func (el *EventLoop) RunOnce(rt core.JSRuntime) bool {
	didWork := el.deliverReady(rt)
	for _, id := range el.dueTimers(time.Now()) {
		el.fireTimer(rt, id)
		rt.RunMicrotasks()
		didWork = true
		// Timer callbacks may complete bridge calls synchronously.
		el.deliverReady(rt)
	}
	return didWork
}

// nextDeadline returns the earliest active timer deadline.
func (el *EventLoop) nextDeadline() (time.Time, bool) {
	el.mu.Lock()
	defer el.mu.Unlock()
	var next time.Time
	for _, t := range el.timers {
		if next.IsZero() || t.due.Before(next) {
			next = t.due
		}
	}
	return next, !next.IsZero()
}

// Wait blocks until a bridge call completes, the next timer is due, or
// ctx ends. It does not touch the runtime, so callers release any engine
// lock before calling it.
func (el *EventLoop) Wait(ctx context.Context) error {
	var timerC <-chan time.Time
	if next, ok := el.nextDeadline(); ok {
		d := time.Until(next)
		if d <= 0 {
			return nil
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timerC = t.C
	}
	select {
	case <-el.wake:
		return nil
	case <-timerC:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Drain runs the loop until no timers or bridge calls remain or ctx ends.
// It is for callers that own rt exclusively for the whole drain.
func (el *EventLoop) Drain(ctx context.Context, rt core.JSRuntime) error {
	for {
		el.RunOnce(rt)
		if !el.HasPending() {
			return nil
		}
		if err := el.Wait(ctx); err != nil {
			return err
		}
	}
}

// HasPending returns true if there are any active timers or bridge calls
// not yet delivered.
func (el *EventLoop) HasPending() bool {
	el.mu.Lock()
	defer el.mu.Unlock()
	return len(el.timers) > 0 || el.inflight > 0 || len(el.ready) > 0
}

// Reset clears all timers and drops every pending bridge call. Results that
// arrive later for dropped calls are discarded.
func (el *EventLoop) Reset() {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.timers = make(map[int]*timer)
	el.nextID = 0
	el.inflight = 0
	el.ready = nil
	el.generation++
}
