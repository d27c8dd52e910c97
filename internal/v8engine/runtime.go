//go:build v8

package v8engine

import (
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"

	"github.com/cryguy/jshost/internal/core"
	v8 "github.com/tommie/v8go"
)

type v8Runtime struct {
	iso    *v8.Isolate
	ctx    *v8.Context
	closed atomic.Bool
}

var _ core.JSRuntime = (*v8Runtime)(nil)

// New creates an isolate with one context. MemoryLimitMB caps the heap.
func New(cfg core.HostConfig) (core.JSRuntime, error) {
	if cfg.MemoryLimitMB <= 0 {
		iso := v8.NewIsolate()
		return &v8Runtime{iso: iso, ctx: v8.NewContext(iso)}, nil
	}
	max := uint64(cfg.MemoryLimitMB) << 20
	iso := v8.NewIsolate(v8.WithResourceConstraints(max/2, max))
	return &v8Runtime{iso: iso, ctx: v8.NewContext(iso)}, nil
}

func scriptErr(err error) error {
	if err == nil {
		return nil
	}
	var jsErr *v8.JSError
	if !errors.As(err, &jsErr) {
		return core.NewScriptError(err.Error())
	}
	if jsErr.StackTrace != "" {
		return core.NewScriptError(jsErr.StackTrace)
	}
	return core.NewScriptError(jsErr.Message)
}

// run evaluates js and never returns a nil value on success.
func (r *v8Runtime) run(js, origin string) (*v8.Value, error) {
	val, err := r.ctx.RunScript(js, origin)
	if err != nil {
		return nil, scriptErr(err)
	}
	if val == nil {
		val = v8.Undefined(r.iso)
	}
	return val, nil
}

func (r *v8Runtime) Eval(js string) error {
	_, err := r.run(js, "<eval>")
	return err
}

func (r *v8Runtime) EvalGlobal(js, name string) error {
	val, err := r.run(js, "<repl>")
	if err != nil {
		return err
	}
	return r.ctx.Global().Set(name, val)
}

func (r *v8Runtime) EvalString(js string) (string, error) {
	val, err := r.run(js, "<eval>")
	if err != nil || val.IsUndefined() {
		return "", err
	}
	return val.String(), nil
}

func (r *v8Runtime) EvalBool(js string) (bool, error) {
	val, err := r.run(js, "<eval>")
	if err != nil {
		return false, err
	}
	if !val.IsBoolean() {
		return false, fmt.Errorf("expected bool, got %s", val.String())
	}
	return val.Boolean(), nil
}

func (r *v8Runtime) EvalInt(js string) (int, error) {
	val, err := r.run(js, "<eval>")
	if err != nil {
		return 0, err
	}
	if !val.IsNumber() {
		return 0, fmt.Errorf("expected number, got %s", val.String())
	}
	return int(val.Integer()), nil
}

// RegisterFunc exposes fn as a global. A returned error is thrown as a
// TypeError carrying "calling <name>: <err>".
func (r *v8Runtime) RegisterFunc(name string, fn any) error {
	hf, err := core.NewHostFunc(name, fn)
	if err != nil {
		return err
	}
	tmpl := v8.NewFunctionTemplate(r.iso, func(info *v8.FunctionCallbackInfo) *v8.Value {
		jsArgs := info.Args()
		args := make([]any, 0, len(jsArgs))
		for i := 0; i < hf.NumIn() && i < len(jsArgs); i++ {
			args = append(args, fromJS(jsArgs[i], hf.In(i)))
		}
		res, err := hf.Call(args)
		if err != nil {
			return r.iso.ThrowException(r.typeError(err.Error()))
		}
		val, err := r.toJS(res)
		if err != nil {
			return r.iso.ThrowException(r.typeError(err.Error()))
		}
		return val
	})
	return r.ctx.Global().Set(name, tmpl.GetFunction(r.ctx))
}

func (r *v8Runtime) typeError(msg string) *v8.Value {
	v, err := r.ctx.RunScript("new TypeError("+core.JsEscape(msg)+")", "<error>")
	if err != nil {
		v, _ = v8.NewValue(r.iso, msg)
	}
	return v
}

func (r *v8Runtime) RunMicrotasks() {
	r.ctx.PerformMicrotaskCheckpoint()
}

// Interrupt terminates the running script. Safe from any goroutine.
func (r *v8Runtime) Interrupt() {
	if !r.closed.Load() {
		r.iso.TerminateExecution()
	}
}

func (r *v8Runtime) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	r.ctx.Close()
	r.iso.Dispose()
	return nil
}

func fromJS(val *v8.Value, kind reflect.Kind) any {
	switch kind {
	case reflect.String:
		return val.String()
	case reflect.Bool:
		return val.Boolean()
	case reflect.Float32, reflect.Float64:
		return val.Number()
	default:
		return val.Integer()
	}
}

// toJS converts scalars directly and everything else through JSON.
func (r *v8Runtime) toJS(value any) (*v8.Value, error) {
	switch v := value.(type) {
	case nil:
		return v8.Undefined(r.iso), nil
	case *v8.Value:
		return v, nil
	case string, bool, float64, int32, int64:
		return v8.NewValue(r.iso, v)
	case int:
		return v8.NewValue(r.iso, int64(v))
	}
	data, err := core.JSONCodec.Marshal(value)
	if err != nil {
		return nil, err
	}
	return v8.JSONParse(r.ctx, string(data))
}
