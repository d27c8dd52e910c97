//go:build !v8

package quickjs

import (
	"fmt"
	"sync/atomic"

	"github.com/cryguy/jshost/internal/core"
	"modernc.org/quickjs"
)

type qjsRuntime struct {
	vm     *quickjs.VM
	jobs   jobQueue
	closed atomic.Bool
}

var _ core.JSRuntime = (*qjsRuntime)(nil)

// New creates a VM. MemoryLimitMB caps the heap and a quarter of it is
// used as the GC threshold.
func New(cfg core.HostConfig) (core.JSRuntime, error) {
	vm, err := quickjs.NewVM()
	if err != nil {
		return nil, fmt.Errorf("creating QuickJS VM: %w", err)
	}
	if cfg.MemoryLimitMB > 0 {
		limit := uintptr(cfg.MemoryLimitMB) << 20
		vm.SetMemoryLimit(limit)
		vm.SetGCThreshold(limit / 4)
	}
	jobs, err := newJobQueue(vm)
	if err != nil {
		vm.Close()
		return nil, err
	}
	return &qjsRuntime{vm: vm, jobs: jobs}, nil
}

// eval runs js at global scope and converts the completion value to Go.
func (r *qjsRuntime) eval(js string) (any, error) {
	v, err := r.vm.Eval(js, quickjs.EvalGlobal)
	if err != nil {
		return nil, core.NewScriptError(err.Error())
	}
	return v, nil
}

func (r *qjsRuntime) Eval(js string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return core.NewScriptError(err.Error())
	}
	v.Free()
	return nil
}

func (r *qjsRuntime) EvalString(js string) (string, error) {
	v, err := r.eval(js)
	if err != nil || v == nil {
		return "", err
	}
	if s, ok := v.(string); ok {
		return s, nil
	}
	return fmt.Sprint(v), nil
}

func (r *qjsRuntime) EvalBool(js string) (bool, error) {
	v, err := r.eval(js)
	if err != nil {
		return false, err
	}
	if b, ok := v.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("expected bool, got %T", v)
}

func (r *qjsRuntime) EvalInt(js string) (int, error) {
	v, err := r.eval(js)
	if err != nil {
		return 0, err
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		return int(n), nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}

// EvalGlobal keeps the completion value as a JS value, so objects and
// functions land in globalThis[name] intact.
func (r *qjsRuntime) EvalGlobal(js, name string) error {
	v, err := r.vm.EvalValue(js, quickjs.EvalGlobal)
	if err != nil {
		return core.NewScriptError(err.Error())
	}
	defer v.Free()
	return r.setGlobal(name, v)
}

func (r *qjsRuntime) setGlobal(name string, value any) error {
	atom, err := r.vm.NewAtom(name)
	if err != nil {
		return fmt.Errorf("setting %s: %w", name, err)
	}
	global := r.vm.GlobalObject()
	defer global.Free()
	return global.SetProperty(atom, value)
}

// RegisterFunc exposes fn as a global. The VM hands (T, error) results
// back as a two-element array, so the raw binding is hidden behind a
// wrapper that throws a TypeError for a non-null error.
func (r *qjsRuntime) RegisterFunc(name string, fn any) error {
	hf, err := core.NewHostFunc(name, fn)
	if err != nil {
		return err
	}
	raw := "__host_raw_" + name
	if err := r.vm.RegisterFunc(raw, fn, false); err != nil {
		return fmt.Errorf("registering %s: %w", name, err)
	}
	return r.Eval(fmt.Sprintf(unwrapJS, core.JsEscape(raw), core.JsEscape(name), hf.NumIn(), core.JsEscape("calling "+name+": ")))
}

const unwrapJS = `(function(raw, name, arity, prefix) {
	var fn = globalThis[raw];
	delete globalThis[raw];
	globalThis[name] = function() {
		if (arguments.length < arity) {
			throw new TypeError(name + " requires " + arity + " argument(s), got " + arguments.length);
		}
		var res = fn.apply(this, arguments);
		if (!Array.isArray(res)) return res;
		if (res[1] !== null && res[1] !== undefined) throw new TypeError(prefix + res[1]);
		return res[0];
	};
})(%s, %s, %d, %s)`

func (r *qjsRuntime) RunMicrotasks() {
	r.jobs.drain()
}

// Interrupt stops the running script at the next interrupt check.
func (r *qjsRuntime) Interrupt() {
	if !r.closed.Load() {
		r.vm.Interrupt()
	}
}

// Close frees the VM. Further calls are no-ops.
func (r *qjsRuntime) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.vm.Close()
	return nil
}
