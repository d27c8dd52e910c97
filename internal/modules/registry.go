package modules

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/cryguy/jshost/internal/bridge"
	"github.com/cryguy/jshost/internal/core"
)

var identRe = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)

// Registry holds the host modules scripts may import by name. Exports are
// installed under globalThis.__host_modules[name].
type Registry struct {
	b *bridge.Bridge

	mu      sync.RWMutex
	modules map[string][]string // module name -> sorted export names
}

// NewRegistry creates an empty registry bound to b.
func NewRegistry(b *bridge.Bridge) (*Registry, error) {
	if err := b.Runtime().Eval(`globalThis.__host_modules = globalThis.__host_modules || {};`); err != nil {
		return nil, fmt.Errorf("initializing host modules: %w", err)
	}
	return &Registry{b: b, modules: make(map[string][]string)}, nil
}

// Define installs a host module. Export values may be a bridge.Adapter or a
// bridge.Func, which become promise-returning functions, or any
// JSON-encodable value, which is exported as a constant. Redefining a module
// replaces it for later bundles.
func (r *Registry) Define(name string, exports map[string]any) error {
	if name == "" || strings.HasPrefix(name, ".") || strings.HasPrefix(name, "/") {
		return fmt.Errorf("invalid module name %q", name)
	}
	names := make([]string, 0, len(exports))
	for k := range exports {
		if !identRe.MatchString(k) {
			return fmt.Errorf("module %s: export %q is not an identifier", name, k)
		}
		names = append(names, k)
	}
	sort.Strings(names)

	var js strings.Builder
	fmt.Fprintf(&js, "(function() {\n\tvar m = {};\n")
	for _, k := range names {
		switch v := exports[k].(type) {
		case bridge.Adapter:
			if err := r.attach(name, k, v, &js); err != nil {
				return err
			}
		case bridge.Func:
			if err := r.attach(name, k, r.b.FuncAdapter(name+"."+k, v), &js); err != nil {
				return err
			}
		case func(context.Context, bridge.Args) (any, error):
			if err := r.attach(name, k, r.b.FuncAdapter(name+"."+k, bridge.Func(v)), &js); err != nil {
				return err
			}
		default:
			data, err := core.JSONCodec.Marshal(v)
			if err != nil {
				return fmt.Errorf("module %s: encoding export %s: %w", name, k, err)
			}
			fmt.Fprintf(&js, "\tm[%s] = JSON.parse(%s);\n", core.JsEscape(k), core.JsEscape(string(data)))
		}
	}
	fmt.Fprintf(&js, "\tglobalThis.__host_modules[%s] = m;\n})();", core.JsEscape(name))

	if err := r.b.Runtime().Eval(js.String()); err != nil {
		return fmt.Errorf("installing module %s: %w", name, err)
	}

	r.mu.Lock()
	r.modules[name] = names
	r.mu.Unlock()
	r.b.Logger().Debug("host module defined", "module", name, "exports", names)
	return nil
}

func (r *Registry) attach(module, export string, a bridge.Adapter, js *strings.Builder) error {
	key := "module:" + module + "." + export
	if err := r.b.Attach(key, a); err != nil {
		return err
	}
	fmt.Fprintf(js, "\tm[%s] = function() { return __bridgeCall(%s, arguments); };\n",
		core.JsEscape(export), core.JsEscape(key))
	return nil
}

// Exports returns the export names of a module and whether it exists.
func (r *Registry) Exports(name string) ([]string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names, ok := r.modules[name]
	return names, ok
}

// Names returns every defined module name, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.modules))
	for k := range r.modules {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
