package core

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestNewHostFunc_RejectsBadSignatures(t *testing.T) {
	cases := map[string]any{
		"not a func":     42,
		"slice param":    func([]string) {},
		"three results":  func() (int, int, error) { return 0, 0, nil },
		"non-error last": func() (int, int) { return 0, 0 },
	}
	for name, fn := range cases {
		if _, err := NewHostFunc("f", fn); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestHostFunc_CallConvertsArguments(t *testing.T) {
	hf, err := NewHostFunc("repeat", func(s string, n int, upper bool) string {
		if upper {
			s = strings.ToUpper(s)
		}
		return strings.Repeat(s, n)
	})
	if err != nil {
		t.Fatalf("NewHostFunc: %v", err)
	}
	if hf.NumIn() != 3 || hf.In(1) != reflect.Int {
		t.Fatalf("NumIn = %d, In(1) = %v", hf.NumIn(), hf.In(1))
	}

	got, err := hf.Call([]any{"ab", float64(2), true})
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "ABAB" {
		t.Errorf("Call = %v, want ABAB", got)
	}
}

func TestHostFunc_CallWrapsError(t *testing.T) {
	sentinel := errors.New("nope")
	hf, err := NewHostFunc("check", func(string) (int, error) { return 0, sentinel })
	if err != nil {
		t.Fatalf("NewHostFunc: %v", err)
	}

	_, err = hf.Call([]any{"x"})
	if !errors.Is(err, sentinel) {
		t.Fatalf("error = %v, want wrapped sentinel", err)
	}
	if err.Error() != "calling check: nope" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestHostFunc_CallTooFewArguments(t *testing.T) {
	hf, err := NewHostFunc("pair", func(a, b string) {})
	if err != nil {
		t.Fatalf("NewHostFunc: %v", err)
	}
	if _, err := hf.Call([]any{"a"}); err == nil {
		t.Fatal("expected error for missing argument")
	}
	res, err := hf.Call([]any{"a", "b"})
	if err != nil || res != nil {
		t.Fatalf("Call = %v, %v", res, err)
	}
}
