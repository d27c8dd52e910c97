//go:build !v8

package bridge

import (
	"strings"
	"testing"
	"time"
)

func TestHelpers_Print(t *testing.T) {
	h := newHarness(t, 0)

	h.run(t, `
		print("plain");
		print(42);
		print_v({a: [1, 2]});
		var cyc = {}; cyc.self = cyc;
		print_v(cyc);
		print_v(undefined);
	`)

	want := "plain\n42\n{\"a\":[1,2]}\n<ERR>\nundefined\n"
	if got := h.out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestHelpers_ConsoleJoinsJSON(t *testing.T) {
	h := newHarness(t, 0)

	h.run(t, `console.log("a", 1, {b: true}); console.error("oops");`)

	want := "\"a\", 1, {\"b\":true}\n\"oops\"\n"
	if got := h.out.String(); got != want {
		t.Errorf("output = %q, want %q", got, want)
	}
}

func TestHelpers_SleepTakesSeconds(t *testing.T) {
	h := newHarness(t, 0)

	start := time.Now()
	h.run(t, `sleep(0.05).then(function() { print("woke"); });`)
	elapsed := time.Since(start)

	if elapsed < 45*time.Millisecond {
		t.Errorf("sleep(0.05) returned after %v", elapsed)
	}
	if got := h.out.String(); got != "woke\n" {
		t.Errorf("output = %q", got)
	}
}

func TestHelpers_TimersOrderAndClear(t *testing.T) {
	h := newHarness(t, 0)

	h.run(t, `
		setTimeout(function() { print("second"); }, 20);
		setTimeout(function(x) { print(x); }, 0, "first");
		var cancelled = setTimeout(function() { print("never"); }, 5);
		clearTimeout(cancelled);
		var n = 0;
		var iv = setInterval(function() {
			n++;
			if (n === 3) { clearInterval(iv); print("ticks " + n); }
		}, 1);
	`)

	out := h.out.String()
	if strings.Contains(out, "never") {
		t.Errorf("cleared timer fired: %q", out)
	}
	if !strings.HasPrefix(out, "first\n") {
		t.Errorf("output = %q, want first line %q", out, "first")
	}
	if !strings.Contains(out, "second\n") || !strings.Contains(out, "ticks 3\n") {
		t.Errorf("output = %q", out)
	}
}

func TestHelpers_Globals(t *testing.T) {
	h := newHarness(t, 0)

	h.run(t, `globalThis.answer = 42; globals();`)

	out := h.out.String()
	if !strings.Contains(out, "answer: number\n") {
		t.Errorf("globals output missing answer: %q", out)
	}
	if !strings.Contains(out, "print: function\n") {
		t.Errorf("globals output missing print: %q", out)
	}
	if strings.Contains(out, "__bridgeCall") {
		t.Errorf("internal names should be hidden: %q", out)
	}
}
