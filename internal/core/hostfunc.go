package core

import (
	"fmt"
	"reflect"
)

// HostFunc is a Go function prepared for registration as a script global.
// Parameters may be string, bool or any int/float kind. Results may be
// none, one value, or a value plus an error.
type HostFunc struct {
	name string
	fn   reflect.Value
	typ  reflect.Type
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// NewHostFunc checks fn's signature and wraps it.
func NewHostFunc(name string, fn any) (*HostFunc, error) {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func {
		return nil, fmt.Errorf("registering %s: expected function, got %T", name, fn)
	}
	t := v.Type()
	for i := 0; i < t.NumIn(); i++ {
		switch t.In(i).Kind() {
		case reflect.String, reflect.Bool,
			reflect.Int, reflect.Int32, reflect.Int64,
			reflect.Float32, reflect.Float64:
		default:
			return nil, fmt.Errorf("registering %s: unsupported parameter type %s", name, t.In(i))
		}
	}
	if t.NumOut() > 2 || (t.NumOut() == 2 && t.Out(1) != errorType) {
		return nil, fmt.Errorf("registering %s: results must be (), (T) or (T, error)", name)
	}
	return &HostFunc{name: name, fn: v, typ: t}, nil
}

// Name returns the global name.
func (h *HostFunc) Name() string { return h.name }

// NumIn returns the number of parameters.
func (h *HostFunc) NumIn() int { return h.typ.NumIn() }

// In returns the kind of parameter i.
func (h *HostFunc) In(i int) reflect.Kind { return h.typ.In(i).Kind() }

// Call invokes the function with already converted arguments. Each argument
// is one of string, bool, int64 or float64 according to In. A non-nil
// error result is returned as "calling <name>: <err>".
func (h *HostFunc) Call(args []any) (any, error) {
	if len(args) < h.typ.NumIn() {
		return nil, fmt.Errorf("%s requires %d argument(s), got %d", h.name, h.typ.NumIn(), len(args))
	}
	in := make([]reflect.Value, h.typ.NumIn())
	for i := range in {
		in[i] = reflect.ValueOf(args[i]).Convert(h.typ.In(i))
	}
	out := h.fn.Call(in)
	switch len(out) {
	case 0:
		return nil, nil
	case 2:
		if err, _ := out[1].Interface().(error); err != nil {
			return nil, fmt.Errorf("calling %s: %w", h.name, err)
		}
	}
	return out[0].Interface(), nil
}
