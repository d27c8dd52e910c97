//go:build !v8

package quickjs

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cryguy/jshost/internal/core"
)

func newTestRuntime(t *testing.T) core.JSRuntime {
	t.Helper()
	rt, err := New(core.HostConfig{MemoryLimitMB: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func TestRuntime_EvalTypes(t *testing.T) {
	rt := newTestRuntime(t)

	s, err := rt.EvalString("'a' + 'b'")
	if err != nil || s != "ab" {
		t.Fatalf("EvalString = %q, %v", s, err)
	}
	b, err := rt.EvalBool("1 < 2")
	if err != nil || !b {
		t.Fatalf("EvalBool = %v, %v", b, err)
	}
	n, err := rt.EvalInt("6 * 7")
	if err != nil || n != 42 {
		t.Fatalf("EvalInt = %d, %v", n, err)
	}
}

func TestRuntime_EvalGlobalPersistsBindings(t *testing.T) {
	rt := newTestRuntime(t)

	if err := rt.EvalGlobal("let counter = 40; counter + 1", "_"); err != nil {
		t.Fatalf("EvalGlobal: %v", err)
	}
	n, err := rt.EvalInt("_")
	if err != nil || n != 41 {
		t.Fatalf("_ = %d, %v", n, err)
	}
	if err := rt.EvalGlobal("counter += 2", "_"); err != nil {
		t.Fatalf("EvalGlobal: %v", err)
	}
	n, err = rt.EvalInt("counter")
	if err != nil || n != 42 {
		t.Fatalf("counter = %d, %v", n, err)
	}
}

func TestRuntime_ThrowBecomesScriptError(t *testing.T) {
	rt := newTestRuntime(t)

	err := rt.Eval("throw new Error('boom')")
	if err == nil {
		t.Fatal("expected error")
	}
	var se *core.ScriptError
	if !errors.As(err, &se) {
		t.Fatalf("error type = %T, want *core.ScriptError", err)
	}
	if !strings.Contains(se.Message, "boom") {
		t.Errorf("Message = %q", se.Message)
	}
}

func TestRuntime_RegisterFuncErrorThrows(t *testing.T) {
	rt := newTestRuntime(t)

	err := rt.RegisterFunc("__fail", func(s string) (string, error) {
		if s == "bad" {
			return "", fmt.Errorf("rejected %s", s)
		}
		return "ok:" + s, nil
	})
	if err != nil {
		t.Fatalf("RegisterFunc: %v", err)
	}

	s, err := rt.EvalString("__fail('x')")
	if err != nil || s != "ok:x" {
		t.Fatalf("__fail('x') = %q, %v", s, err)
	}
	s, err = rt.EvalString("try { __fail('bad'); 'no' } catch (e) { e instanceof TypeError ? e.message : 'wrong' }")
	if err != nil {
		t.Fatalf("EvalString: %v", err)
	}
	if !strings.Contains(s, "rejected bad") {
		t.Errorf("message = %q", s)
	}
}

func TestRuntime_RunMicrotasks(t *testing.T) {
	rt := newTestRuntime(t)

	if err := rt.Eval("globalThis.done = false; Promise.resolve().then(() => { globalThis.done = true; })"); err != nil {
		t.Fatalf("Eval: %v", err)
	}
	rt.RunMicrotasks()
	done, err := rt.EvalBool("globalThis.done")
	if err != nil || !done {
		t.Fatalf("done = %v, %v", done, err)
	}
}

func TestRuntime_InterruptStopsLoop(t *testing.T) {
	rt := newTestRuntime(t)

	timer := time.AfterFunc(50*time.Millisecond, rt.Interrupt)
	defer timer.Stop()

	if err := rt.Eval("for (;;) {}"); err == nil {
		t.Fatal("expected infinite loop to be interrupted")
	}
}

func TestRuntime_CloseIdempotent(t *testing.T) {
	rt, err := New(core.HostConfig{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := rt.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	rt.Interrupt()
}
