//go:build !v8

package bridge

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/cryguy/jshost/internal/channel"
	"github.com/cryguy/jshost/internal/core"
	"github.com/cryguy/jshost/internal/eventloop"
	"github.com/cryguy/jshost/internal/quickjs"
)

type harness struct {
	rt  core.JSRuntime
	el  *eventloop.EventLoop
	b   *Bridge
	out *bytes.Buffer
}

func newHarness(t *testing.T, maxPending int) *harness {
	t.Helper()
	rt, err := quickjs.New(core.HostConfig{})
	if err != nil {
		t.Fatalf("quickjs.New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	el := eventloop.New(time.Millisecond, nil)
	b, err := New(rt, el, nil, maxPending)
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	t.Cleanup(b.Close)
	out := &bytes.Buffer{}
	if err := b.InstallHelpers(out); err != nil {
		t.Fatalf("InstallHelpers: %v", err)
	}
	return &harness{rt: rt, el: el, b: b, out: out}
}

func (h *harness) run(t *testing.T, js string) {
	t.Helper()
	if err := h.rt.Eval(js); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	h.rt.RunMicrotasks()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.el.Drain(ctx, h.rt); err != nil {
		t.Fatalf("Drain: %v", err)
	}
}

func (h *harness) str(t *testing.T, js string) string {
	t.Helper()
	s, err := h.rt.EvalString(js)
	if err != nil {
		t.Fatalf("EvalString(%s): %v", js, err)
	}
	return s
}

func TestBridge_SendRecvFIFO(t *testing.T) {
	h := newHarness(t, 0)
	tx, rx := channel.New[int]()
	if err := RegisterSender(h.b, "send", tx); err != nil {
		t.Fatalf("RegisterSender: %v", err)
	}
	if err := RegisterReceiver(h.b, "recv", rx); err != nil {
		t.Fatalf("RegisterReceiver: %v", err)
	}

	h.run(t, `
		(async function() {
			for (var i = 0; i < 20; i++) send(i);
			var got = await Promise.all([recv(), recv(), recv(), recv(), recv()]);
			for (var i = 5; i < 20; i++) got.push(await recv());
			globalThis.got = got.join(',');
		})();
	`)

	want := "0,1,2,3,4,5,6,7,8,9,10,11,12,13,14,15,16,17,18,19"
	if got := h.str(t, "globalThis.got"); got != want {
		t.Errorf("got = %q, want %q", got, want)
	}
}

func TestBridge_HelloFromJSArrivesUnmodified(t *testing.T) {
	h := newHarness(t, 0)
	tx, rx := channel.New[string]()
	if err := RegisterSender(h.b, "send", tx); err != nil {
		t.Fatalf("RegisterSender: %v", err)
	}

	h.run(t, `send("Hello from JS").then(function(v) { globalThis.sent = v === undefined; });`)

	v, ok, err := rx.TryRecv()
	if err != nil || !ok {
		t.Fatalf("TryRecv = %q, %v, %v", v, ok, err)
	}
	if v != "Hello from JS" {
		t.Errorf("received %q, want %q", v, "Hello from JS")
	}
	if got := h.str(t, "String(globalThis.sent)"); got != "true" {
		t.Errorf("send should resolve with undefined, sent = %s", got)
	}
}

func TestBridge_SendAfterReceiverDropRejects(t *testing.T) {
	h := newHarness(t, 0)
	tx, rx := channel.New[string]()
	rx.Close()
	if err := RegisterSender(h.b, "send", tx); err != nil {
		t.Fatalf("RegisterSender: %v", err)
	}

	h.run(t, `send("x").catch(function(e) { globalThis.msg = e.message; });`)

	if got := h.str(t, "globalThis.msg"); got != channel.ErrClosed.Error() {
		t.Errorf("msg = %q, want %q", got, channel.ErrClosed.Error())
	}
}

func TestBridge_RecvAfterSenderDropRejects(t *testing.T) {
	h := newHarness(t, 0)
	tx, rx := channel.New[string]()
	_ = tx.Send("last")
	tx.Close()
	if err := RegisterReceiver(h.b, "recv", rx); err != nil {
		t.Fatalf("RegisterReceiver: %v", err)
	}

	h.run(t, `
		recv().then(function(v) {
			globalThis.first = v;
			return recv();
		}).catch(function(e) { globalThis.msg = e.message; });
	`)

	if got := h.str(t, "globalThis.first"); got != "last" {
		t.Errorf("first = %q, want %q", got, "last")
	}
	if got := h.str(t, "globalThis.msg"); got != "channel closed" {
		t.Errorf("msg = %q, want %q", got, "channel closed")
	}
}

func TestBridge_OneshotSecondCallRejects(t *testing.T) {
	h := newHarness(t, 0)
	tx, rx := channel.Oneshot[string]()
	if err := RegisterOneshot(h.b, "resolve", tx); err != nil {
		t.Fatalf("RegisterOneshot: %v", err)
	}

	h.run(t, `
		resolve("done").then(function() {
			return resolve("again");
		}).then(function() {
			globalThis.msg = "resolved twice";
		}, function(e) {
			globalThis.msg = e.message;
		});
	`)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	v, err := rx.Wait(ctx)
	if err != nil || v != "done" {
		t.Fatalf("Wait = %q, %v", v, err)
	}
	if got := h.str(t, "globalThis.msg"); got != "already resolved" {
		t.Errorf("msg = %q, want %q", got, "already resolved")
	}
}

func TestBridge_OneshotReceiverDropped(t *testing.T) {
	h := newHarness(t, 0)
	tx, rx := channel.Oneshot[int]()
	rx.Close()
	if err := RegisterOneshot(h.b, "resolve", tx); err != nil {
		t.Fatalf("RegisterOneshot: %v", err)
	}

	h.run(t, `resolve(1).catch(function(e) { globalThis.msg = e.message; });`)

	if got := h.str(t, "globalThis.msg"); got != "channel closed" {
		t.Errorf("msg = %q, want %q", got, "channel closed")
	}
}

func TestBridge_DecodeErrorRejects(t *testing.T) {
	h := newHarness(t, 0)
	tx, _ := channel.New[int]()
	if err := RegisterSender(h.b, "send", tx); err != nil {
		t.Fatalf("RegisterSender: %v", err)
	}

	h.run(t, `send("not a number").catch(function(e) { globalThis.msg = e.message; });`)

	if got := h.str(t, "globalThis.msg"); got != `argument 0: expected int, got "not a number"` {
		t.Errorf("msg = %q, want decode error", got)
	}
}

func TestBridge_RegisterFuncResolvesAndRejects(t *testing.T) {
	h := newHarness(t, 0)
	err := h.b.RegisterFunc("greet", func(ctx context.Context, args Args) (any, error) {
		var name string
		if err := args.Decode(0, &name); err != nil {
			return nil, err
		}
		if name == "" {
			return nil, errors.New("name required")
		}
		return map[string]string{"greeting": "hi " + name}, nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	h.run(t, `
		greet("ada").then(function(v) { globalThis.ok = v.greeting; });
		greet("").catch(function(e) { globalThis.bad = e.message; });
	`)

	if got := h.str(t, "globalThis.ok"); got != "hi ada" {
		t.Errorf("ok = %q", got)
	}
	if got := h.str(t, "globalThis.bad"); got != "name required" {
		t.Errorf("bad = %q", got)
	}
}

func TestBridge_PanicBecomesRejection(t *testing.T) {
	h := newHarness(t, 0)
	if err := h.b.RegisterFunc("explode", func(context.Context, Args) (any, error) {
		panic("kaboom")
	}); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}
	if err := h.b.Register("explodeSync", AdapterFunc(func(context.Context, Args) <-chan Result {
		panic("sync kaboom")
	})); err != nil {
		t.Fatalf("Register: %v", err)
	}

	h.run(t, `
		explode().catch(function(e) { globalThis.a = e.message; });
		explodeSync().catch(function(e) { globalThis.b = e.message; });
	`)

	if got := h.str(t, "globalThis.a"); !strings.Contains(got, "kaboom") {
		t.Errorf("a = %q", got)
	}
	if got := h.str(t, "globalThis.b"); !strings.Contains(got, "sync kaboom") {
		t.Errorf("b = %q", got)
	}
}

func TestBridge_MaxPending(t *testing.T) {
	h := newHarness(t, 1)
	block := make(chan struct{})
	if err := h.b.RegisterFunc("wait", func(ctx context.Context, _ Args) (any, error) {
		<-block
		return nil, nil
	}); err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	if err := h.rt.Eval(`
		wait();
		wait().catch(function(e) { globalThis.msg = e.message; });
	`); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	h.rt.RunMicrotasks()
	close(block)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.el.Drain(ctx, h.rt); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	if got := h.str(t, "globalThis.msg"); !strings.Contains(got, "too many pending") {
		t.Errorf("msg = %q", got)
	}
}

type memRecorder struct {
	rows []string
}

func (m *memRecorder) Record(direction, channel string, payload []byte) {
	m.rows = append(m.rows, direction+" "+channel+" "+string(payload))
}

func TestBridge_Recorder(t *testing.T) {
	h := newHarness(t, 0)
	rec := &memRecorder{}
	h.b.SetRecorder(rec)
	tx, _ := channel.New[string]()
	if err := RegisterSender(h.b, "send", tx); err != nil {
		t.Fatalf("RegisterSender: %v", err)
	}

	h.run(t, `send("a")`)

	if len(rec.rows) != 1 || rec.rows[0] != `tx send "a"` {
		t.Errorf("rows = %q", rec.rows)
	}
}
