package bridge

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/cryguy/jshost/internal/core"
	"github.com/cryguy/jshost/internal/eventloop"
	"github.com/go-errors/errors"
	"github.com/hashicorp/go-hclog"
)

// Result is the single outcome of an adapter invocation. A nil Value
// resolves the promise with undefined.
type Result struct {
	Value any
	Err   error
}

// Adapter is a host asynchronous primitive callable from script. Invoke
// runs on the engine goroutine and must not block; the returned channel
// yields exactly one Result.
type Adapter interface {
	Invoke(ctx context.Context, args Args) <-chan Result
}

// AdapterFunc adapts a plain function to the Adapter interface.
type AdapterFunc func(ctx context.Context, args Args) <-chan Result

// Invoke calls f.
func (f AdapterFunc) Invoke(ctx context.Context, args Args) <-chan Result {
	return f(ctx, args)
}

// Func is an asynchronous Go function exposed to script. It runs on its own
// goroutine.
type Func func(ctx context.Context, args Args) (any, error)

// Recorder observes messages crossing the bridge.
type Recorder interface {
	Record(direction, channel string, payload []byte)
}

// Resolved returns a channel holding an already-settled successful Result.
func Resolved(v any) <-chan Result {
	ch := make(chan Result, 1)
	ch <- Result{Value: v}
	return ch
}

// Rejected returns a channel holding an already-settled failed Result.
func Rejected(err error) <-chan Result {
	ch := make(chan Result, 1)
	ch <- Result{Err: err}
	return ch
}

// bridgeJS installs the promise plumbing. __bridgeCall creates a promise,
// starts the Go adapter synchronously and parks the resolvers until the
// event loop calls __bridgeSettle.
const bridgeJS = `
(function() {
	globalThis.__bridgePromises = {};
	globalThis.__bridgeSettle = function(id, ok, payload) {
		var p = globalThis.__bridgePromises[id];
		if (!p) return;
		delete globalThis.__bridgePromises[id];
		if (ok) {
			p.resolve(payload === '' ? undefined : JSON.parse(payload));
		} else {
			p.reject(new Error(payload));
		}
	};
	globalThis.__bridgeCall = function(name, args) {
		return new Promise(function(resolve, reject) {
			var id;
			try {
				var list = [];
				for (var i = 0; i < args.length; i++) {
					list.push(args[i] === undefined ? null : args[i]);
				}
				id = __bridgeStart(name, JSON.stringify(list));
			} catch (e) {
				var msg = e instanceof Error ? e.message : String(e);
				reject(new Error(msg.replace(/^calling __bridgeStart: /, '')));
				return;
			}
			globalThis.__bridgePromises[id] = { resolve: resolve, reject: reject };
		});
	};
})();
`

// Bridge connects adapters to one engine. Every method that touches the
// engine must be called while the caller holds the engine lock.
type Bridge struct {
	rt  core.JSRuntime
	el  *eventloop.EventLoop
	log hclog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	adapters   map[string]Adapter
	nextID     uint64
	maxPending int
	recorder   Recorder
}

// New installs the bridge plumbing into rt. Completions are delivered by el.
// maxPending bounds unsettled calls, 0 means unlimited.
func New(rt core.JSRuntime, el *eventloop.EventLoop, logger hclog.Logger, maxPending int) (*Bridge, error) {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		rt:         rt,
		el:         el,
		log:        logger,
		ctx:        ctx,
		cancel:     cancel,
		adapters:   make(map[string]Adapter),
		maxPending: maxPending,
	}
	if err := rt.RegisterFunc("__bridgeStart", b.start); err != nil {
		cancel()
		return nil, fmt.Errorf("registering __bridgeStart: %w", err)
	}
	if err := rt.Eval(bridgeJS); err != nil {
		cancel()
		return nil, fmt.Errorf("installing bridge: %w", err)
	}
	return b, nil
}

// SetRecorder attaches r to every sender, receiver and one-shot adapter.
func (b *Bridge) SetRecorder(r Recorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorder = r
}

// Logger returns the bridge logger.
func (b *Bridge) Logger() hclog.Logger { return b.log }

// Runtime returns the engine the bridge is installed in.
func (b *Bridge) Runtime() core.JSRuntime { return b.rt }

// Register installs globalThis[name] as a promise-returning function backed
// by a.
func (b *Bridge) Register(name string, a Adapter) error {
	if err := b.Attach(name, a); err != nil {
		return err
	}
	js := fmt.Sprintf(`globalThis[%s] = function() { return __bridgeCall(%s, arguments); };`,
		core.JsEscape(name), core.JsEscape(name))
	if err := b.rt.Eval(js); err != nil {
		return fmt.Errorf("installing %s: %w", name, err)
	}
	return nil
}

// Attach makes a callable through __bridgeCall(name, args) without creating
// a global. Host modules use it for their exports.
func (b *Bridge) Attach(name string, a Adapter) error {
	if name == "" {
		return fmt.Errorf("adapter name is empty")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.adapters[name] = a
	return nil
}

// RegisterFunc installs fn as a promise-returning global.
func (b *Bridge) RegisterFunc(name string, fn Func) error {
	return b.Register(name, b.FuncAdapter(name, fn))
}

// FuncAdapter wraps fn so each invocation runs on its own goroutine with
// panics converted to rejections.
func (b *Bridge) FuncAdapter(name string, fn Func) Adapter {
	return AdapterFunc(func(ctx context.Context, args Args) <-chan Result {
		out := make(chan Result, 1)
		go func() {
			defer b.recoverInto(name, out)
			v, err := fn(ctx, args)
			out <- Result{Value: v, Err: err}
		}()
		return out
	})
}

// recoverInto converts a panic in adapter code into a failed Result.
func (b *Bridge) recoverInto(name string, out chan<- Result) {
	p := recover()
	if p == nil {
		return
	}
	err := errors.Wrap(p, 2)
	b.log.Error("adapter panic", "adapter", name, "error", err.Error(), "stack", err.ErrorStack())
	out <- Result{Err: fmt.Errorf("%s: %s", name, err.Error())}
}

// start is called from script. It runs the adapter and hands the pending
// result to the event loop, returning the promise id.
func completion(name string, r Result, ok bool) eventloop.Completion {
	if !ok {
		return eventloop.Completion{Err: fmt.Errorf("%s: no result", name)}
	}
	return encode(r)
}

func (b *Bridge) start(name, argsJSON string) (string, error) {
	b.mu.Lock()
	a, ok := b.adapters[name]
	if !ok {
		b.mu.Unlock()
		return "", fmt.Errorf("no host function named %q", name)
	}
	if b.maxPending > 0 && b.el.Inflight() >= b.maxPending {
		b.mu.Unlock()
		return "", fmt.Errorf("too many pending host calls (limit %d)", b.maxPending)
	}
	b.nextID++
	id := strconv.FormatUint(b.nextID, 10)
	b.mu.Unlock()

	var args Args
	if err := core.JSONCodec.UnmarshalFromString(argsJSON, &args); err != nil {
		return "", fmt.Errorf("decoding arguments: %w", err)
	}

	results := b.invoke(name, a, args)
	select {
	case r, ok := <-results:
		b.el.Complete(id, completion(name, r, ok))
	default:
		done := make(chan eventloop.Completion, 1)
		go func() {
			r, ok := <-results
			done <- completion(name, r, ok)
		}()
		b.el.AddPending(id, done)
	}
	b.log.Trace("call started", "name", name, "id", id)
	return id, nil
}

// invoke calls a.Invoke, converting a synchronous panic into a rejection.
func (b *Bridge) invoke(name string, a Adapter, args Args) (ch <-chan Result) {
	out := make(chan Result, 1)
	defer func() {
		if p := recover(); p != nil {
			err := errors.Wrap(p, 2)
			b.log.Error("adapter panic", "adapter", name, "error", err.Error(), "stack", err.ErrorStack())
			out <- Result{Err: fmt.Errorf("%s: %s", name, err.Error())}
			ch = out
		}
	}()
	return a.Invoke(b.ctx, args)
}

// encode turns a Result into its JSON form for the engine.
func encode(r Result) eventloop.Completion {
	if r.Err != nil {
		return eventloop.Completion{Err: r.Err}
	}
	if r.Value == nil {
		return eventloop.Completion{}
	}
	data, err := core.JSONCodec.Marshal(r.Value)
	if err != nil {
		return eventloop.Completion{Err: fmt.Errorf("encoding result: %w", err)}
	}
	return eventloop.Completion{ValueJSON: string(data)}
}

// record forwards a message to the recorder, if any.
func (b *Bridge) record(direction, channel string, v any) {
	b.mu.Lock()
	r := b.recorder
	b.mu.Unlock()
	if r == nil {
		return
	}
	data, err := core.JSONCodec.Marshal(v)
	if err != nil {
		b.log.Warn("journal encode failed", "channel", channel, "error", err)
		return
	}
	r.Record(direction, channel, data)
}

// Close cancels every in-flight adapter.
func (b *Bridge) Close() {
	b.cancel()
}
