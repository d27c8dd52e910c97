package jshost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cryguy/jshost/internal/bridge"
	"github.com/cryguy/jshost/internal/core"
	"github.com/cryguy/jshost/internal/eventloop"
	"github.com/cryguy/jshost/internal/modules"
	"github.com/hashicorp/go-hclog"
)

// hostJS installs the result rendering and call-settlement helpers used by
// Eval and Call.
const hostJS = `
(function() {
	globalThis.__jshostRender = function(v) {
		if (v === undefined) return 'undefined';
		if (typeof v === 'function') return '[Function' + (v.name ? ': ' + v.name : '') + ']';
		if (typeof Promise !== 'undefined' && v instanceof Promise) return 'Promise {}';
		try {
			var s = JSON.stringify(v);
			return s === undefined ? String(v) : s;
		} catch (e) {
			return '<ERR>';
		}
	};
	globalThis.__jshostCalls = {};
	globalThis.__jshostSettle = function(id, v) {
		var st = globalThis.__jshostCalls[id] = { done: false, value: undefined, error: null };
		function ok(r) {
			st.done = true;
			st.value = r;
		}
		function fail(e) {
			var msg = String(e);
			var stack = (e && e.stack) ? String(e.stack) : '';
			st.done = true;
			st.error = stack.indexOf(msg) === 0 ? stack : (stack ? msg + '\n' + stack : msg);
		}
		if (v && typeof v.then === 'function') {
			v.then(ok, fail);
		} else {
			ok(v);
		}
	};
	globalThis.__jshostCallStatus = function(id) {
		var st = globalThis.__jshostCalls[id];
		if (!st) return 'missing';
		if (!st.done) return 'pending';
		delete globalThis.__jshostCalls[id];
		if (st.error !== null) return 'error:' + st.error;
		var s;
		try {
			s = JSON.stringify(st.value);
		} catch (e) {
			return 'error:' + String(e);
		}
		return 'ok:' + (s === undefined ? 'null' : s);
	};
})();
`

var pathSegmentRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Host owns one JavaScript engine together with its event loop, the
// adapter bridge and the host module registry. All engine access is
// serialized by one mutex; waiting for timers and host calls releases it,
// so a REPL can evaluate input while Serve drives the loop.
type Host struct {
	mu      sync.Mutex
	cfg     Config
	rt      core.JSRuntime
	el      *eventloop.EventLoop
	bridge  *bridge.Bridge
	modules *modules.Registry

	out      io.Writer
	errOut   io.Writer
	log      hclog.Logger
	recorder Recorder

	closed  bool
	callSeq int
}

// New creates a Host with the helpers (print, print_v, console, sleep,
// timers, globals) installed.
func New(cfg Config, opts ...Option) (*Host, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	h := &Host{cfg: cfg, out: os.Stdout, errOut: os.Stderr}
	for _, opt := range opts {
		opt(h)
	}
	if h.log == nil {
		h.log = NewLogger(cfg.LogLevel, h.errOut)
	}

	rt, err := newRuntime(cfg)
	if err != nil {
		return nil, err
	}
	h.rt = rt

	h.el = eventloop.New(cfg.IntervalFloor(), h.log.Named("eventloop"))
	h.el.OnError = h.reportUncaught

	h.bridge, err = bridge.New(rt, h.el, h.log.Named("bridge"), cfg.MaxPending)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := h.bridge.InstallHelpers(h.out); err != nil {
		rt.Close()
		return nil, fmt.Errorf("installing helpers: %w", err)
	}
	if h.recorder != nil {
		h.bridge.SetRecorder(h.recorder)
	}
	h.modules, err = modules.NewRegistry(h.bridge)
	if err != nil {
		rt.Close()
		return nil, err
	}
	if err := rt.Eval(hostJS); err != nil {
		rt.Close()
		return nil, fmt.Errorf("installing host helpers: %w", err)
	}

	h.log.Debug("host ready", "backend", backend, "memory_limit_mb", cfg.MemoryLimitMB)
	return h, nil
}

// NewLogger builds the default host logger at level (trace, debug, info,
// warn, error). Unknown levels mean warn.
func NewLogger(level string, w io.Writer) hclog.Logger {
	lvl := hclog.LevelFromString(level)
	if lvl == hclog.NoLevel {
		lvl = hclog.Warn
	}
	return hclog.New(&hclog.LoggerOptions{
		Name:   "jshost",
		Output: w,
		Level:  lvl,
	})
}

// Backend reports which engine is compiled in.
func (h *Host) Backend() Backend { return backend }

// Logger returns the host logger.
func (h *Host) Logger() hclog.Logger { return h.log }

func (h *Host) reportUncaught(err error) {
	fmt.Fprintf(h.errOut, "Uncaught %v\n", err)
}

// guard runs fn with the engine interrupted when ctx ends or the execution
// timeout passes. Must be called with h.mu held.
func (h *Host) guard(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	stop := context.AfterFunc(ctx, h.rt.Interrupt)
	defer stop()

	timeout := h.cfg.EvalTimeout()
	var fired atomic.Bool
	if timeout > 0 {
		t := time.AfterFunc(timeout, func() {
			fired.Store(true)
			h.rt.Interrupt()
		})
		defer t.Stop()
	}

	err := fn()
	if fired.Load() {
		return fmt.Errorf("%w (limit %v)", ErrTimeout, timeout)
	}
	if ctxErr := ctx.Err(); ctxErr != nil && err != nil {
		return ctxErr
	}
	return err
}

// Eval runs src as a classic script at global scope, so top-level
// declarations persist between calls. Host calls that completed during the
// evaluation are settled before it returns. A result other than undefined is
// stored in the global _. The result is returned rendered as JSON, or
// "undefined".
func (h *Host) Eval(ctx context.Context, src string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", ErrClosedHost
	}

	var out string
	err := h.guard(ctx, func() error {
		if err := h.rt.EvalGlobal(src, "__jshost_last"); err != nil {
			return err
		}
		h.rt.RunMicrotasks()
		h.el.Settle(h.rt)
		s, err := h.rt.EvalString(`(function() {
			var v = globalThis.__jshost_last;
			delete globalThis.__jshost_last;
			if (v !== undefined) globalThis._ = v;
			return __jshostRender(v);
		})()`)
		out = s
		return err
	})
	return out, err
}

// RunModule bundles src as an ES module named name and runs it, driving the
// event loop until the module (including any top-level await) settles.
// Relative imports resolve from the directory of name. A rejection is
// returned as a *ScriptError.
func (h *Host) RunModule(ctx context.Context, name, src string) error {
	if name == "" {
		name = "main.js"
	}
	code, err := h.modules.Bundle(name, src, filepath.Dir(name))
	if err != nil {
		return err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return ErrClosedHost
	}
	err = h.guard(ctx, func() error {
		if err := h.rt.Eval(code); err != nil {
			return err
		}
		h.rt.RunMicrotasks()
		h.el.Settle(h.rt)
		return nil
	})
	h.mu.Unlock()
	if err != nil {
		return err
	}

	_, err = h.await(ctx, modules.StatusJS(name))
	return err
}

// Call resolves a dotted global path such as "api.handlers.run", calls the
// function with no argument (argJSON empty) or one JSON-decoded argument,
// waits for a returned promise and returns the result as JSON ("null" for
// undefined).
func (h *Host) Call(ctx context.Context, path, argJSON string) (string, error) {
	segs := strings.Split(path, ".")
	for _, s := range segs {
		if !pathSegmentRe.MatchString(s) {
			return "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
		}
	}
	if argJSON != "" {
		var v any
		if err := core.JSONCodec.UnmarshalFromString(argJSON, &v); err != nil {
			return "", fmt.Errorf("argument for %s is not valid JSON: %s", path, argJSON)
		}
	}
	segsJSON, err := core.JSONCodec.Marshal(segs)
	if err != nil {
		return "", err
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return "", ErrClosedHost
	}
	h.callSeq++
	id := strconv.Itoa(h.callSeq)
	callArg := ""
	if argJSON != "" {
		callArg = ", JSON.parse(" + core.JsEscape(argJSON) + ")"
	}
	js := fmt.Sprintf(`(function() {
		var segs = %s;
		var self = globalThis, fn = globalThis;
		for (var i = 0; i < segs.length; i++) {
			if (fn === null || fn === undefined) return 'notfn';
			self = fn;
			fn = fn[segs[i]];
		}
		if (typeof fn !== 'function') return 'notfn';
		__jshostSettle(%s, fn.call(self%s));
		return 'started';
	})()`, segsJSON, core.JsEscape(id), callArg)

	var started string
	err = h.guard(ctx, func() error {
		s, err := h.rt.EvalString(js)
		started = s
		if err == nil {
			h.rt.RunMicrotasks()
			h.el.Settle(h.rt)
		}
		return err
	})
	h.mu.Unlock()
	if err != nil {
		return "", err
	}
	if started == "notfn" {
		return "", fmt.Errorf("%w: %s", ErrNotFunction, path)
	}

	return h.await(ctx, "__jshostCallStatus("+core.JsEscape(id)+")")
}

// await drives the event loop until statusJS reports completion. statusJS
// evaluates to "pending", "ok", "ok:<json>" or "error:<text>".
func (h *Host) await(ctx context.Context, statusJS string) (string, error) {
	for {
		h.mu.Lock()
		if h.closed {
			h.mu.Unlock()
			return "", ErrClosedHost
		}
		var status string
		err := h.guard(ctx, func() error {
			h.el.RunOnce(h.rt)
			s, err := h.rt.EvalString(statusJS)
			status = s
			return err
		})
		pending := h.el.HasPending()
		h.mu.Unlock()
		if err != nil {
			return "", err
		}

		switch {
		case status == "ok":
			return "", nil
		case strings.HasPrefix(status, "ok:"):
			return strings.TrimPrefix(status, "ok:"), nil
		case strings.HasPrefix(status, "error:"):
			return "", core.NewScriptError(strings.TrimPrefix(status, "error:"))
		case status != "pending":
			return "", fmt.Errorf("unexpected completion state %q", status)
		}

		if !pending {
			return "", ErrModuleStalled
		}
		if err := h.el.Wait(ctx); err != nil {
			return "", err
		}
	}
}

// step runs one event loop iteration and reports whether work remains.
func (h *Host) step(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false, ErrClosedHost
	}
	err := h.guard(ctx, func() error {
		h.el.RunOnce(h.rt)
		return nil
	})
	return h.el.HasPending(), err
}

// Idle drives timers and host call completions until nothing is pending or
// ctx ends.
func (h *Host) Idle(ctx context.Context) error {
	for {
		pending, err := h.step(ctx)
		if err != nil {
			return err
		}
		if !pending {
			return nil
		}
		if err := h.el.Wait(ctx); err != nil {
			return err
		}
	}
}

// Serve drives the event loop until ctx ends, sleeping while nothing is
// pending. Runaway callbacks are reported and the loop continues.
func (h *Host) Serve(ctx context.Context) error {
	for {
		if _, err := h.step(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if !errors.Is(err, ErrTimeout) {
				return err
			}
			h.reportUncaught(err)
		}
		if err := h.el.Wait(ctx); err != nil {
			return nil
		}
	}
}

// Pending reports whether timers or host calls remain.
func (h *Host) Pending() bool {
	return h.el.HasPending()
}

// Do runs fn with the engine locked, for registering adapters through the
// bridge directly.
func (h *Host) Do(fn func(b *bridge.Bridge) error) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosedHost
	}
	return fn(h.bridge)
}

// Register installs name as a promise-returning global backed by a.
func (h *Host) Register(name string, a Adapter) error {
	return h.Do(func(b *bridge.Bridge) error { return b.Register(name, a) })
}

// RegisterFunc installs fn as a promise-returning global. fn runs on its
// own goroutine for every call.
func (h *Host) RegisterFunc(name string, fn Func) error {
	return h.Do(func(b *bridge.Bridge) error { return b.RegisterFunc(name, fn) })
}

// DefineModule makes a host module importable by name from modules run
// with RunModule. See modules.Registry.Define for the accepted exports.
func (h *Host) DefineModule(name string, exports map[string]any) error {
	return h.Do(func(*bridge.Bridge) error { return h.modules.Define(name, exports) })
}

// RegisterSender installs name as a send adapter over tx.
func RegisterSender[T any](h *Host, name string, tx *Sender[T]) error {
	return h.Do(func(b *bridge.Bridge) error { return bridge.RegisterSender(b, name, tx) })
}

// RegisterReceiver installs name as a receive adapter over rx.
func RegisterReceiver[T any](h *Host, name string, rx *Receiver[T]) error {
	return h.Do(func(b *bridge.Bridge) error { return bridge.RegisterReceiver(b, name, rx) })
}

// RegisterOneshot installs name as a one-shot adapter over tx.
func RegisterOneshot[T any](h *Host, name string, tx *OneshotSender[T]) error {
	return h.Do(func(b *bridge.Bridge) error { return bridge.RegisterOneshot(b, name, tx) })
}

// Close cancels in-flight host calls and releases the engine.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.bridge.Close()
	h.el.Reset()
	return h.rt.Close()
}
