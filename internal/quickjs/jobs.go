//go:build !v8

package quickjs

import (
	"errors"
	"reflect"
	"unsafe"

	"modernc.org/libc"
	lib "modernc.org/libquickjs"
	"modernc.org/quickjs"
)

// jobQueue drives JS_ExecutePendingJob, which the VM wrapper never calls
// on its own. The C runtime handle and its TLS live in unexported fields
// of *quickjs.VM (v0.17.x: VM.runtime -> {cRuntime uintptr, tls *libc.TLS}).
type jobQueue struct {
	rt  uintptr
	tls *libc.TLS
}

var errNoRuntime = errors.New("quickjs: runtime handle not found")

func newJobQueue(vm *quickjs.VM) (jobQueue, error) {
	field := func(v reflect.Value, name string) (reflect.Value, bool) {
		f := v.FieldByName(name)
		return f, f.IsValid()
	}

	ptr, ok := field(reflect.ValueOf(vm).Elem(), "runtime")
	if !ok || ptr.IsNil() {
		return jobQueue{}, errNoRuntime
	}
	inner := reflect.NewAt(ptr.Type().Elem(), unsafe.Pointer(ptr.Pointer())).Elem()

	handle, ok := field(inner, "cRuntime")
	if !ok {
		return jobQueue{}, errNoRuntime
	}
	tls, ok := field(inner, "tls")
	if !ok || tls.IsNil() {
		return jobQueue{}, errNoRuntime
	}
	return jobQueue{
		rt:  uintptr(handle.Uint()),
		tls: (*libc.TLS)(unsafe.Pointer(tls.Pointer())),
	}, nil
}

// drain runs queued jobs until none remain or one fails, and reports how
// many ran. A failing job's exception is left for the promise it belongs to.
func (q jobQueue) drain() int {
	n := 0
	for lib.XJS_ExecutePendingJob(q.tls, q.rt, 0) > 0 {
		n++
	}
	return n
}
