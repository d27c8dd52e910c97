package modules

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cryguy/jshost/internal/core"
	esbuild "github.com/evanw/esbuild/pkg/api"
)

const (
	hostNamespace  = "jshost-host"
	entryNamespace = "jshost-entry"
	entryPrefix    = "jshost-entry:"
)

// Bundle resolves the imports of an ES module and returns a classic script
// that runs it. The module source is src, named name, and relative imports
// resolve from dir. Host modules defined in the registry resolve to their
// installed exports.
//
// The script records progress in globalThis.__module_state[name]; see
// StatusJS.
func (r *Registry) Bundle(name, src, dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving module dir: %w", err)
	}
	entry := fmt.Sprintf("import * as ns from %s;\nglobalThis.__module_exports[%s] = ns;\n",
		core.JsEscape(entryPrefix+name), core.JsEscape(name))

	opts := esbuild.BuildOptions{
		Stdin: &esbuild.StdinOptions{
			Contents:   entry,
			Sourcefile: "<entry>",
			ResolveDir: dir,
			Loader:     esbuild.LoaderJS,
		},
		AbsWorkingDir: dir,
		Bundle:        true,
		Format:        esbuild.FormatESModule,
		Write:         false,
		Platform:      esbuild.PlatformNeutral,
		Target:        esbuild.ES2022,
		TreeShaking:   esbuild.TreeShakingFalse,
		LogLevel:      esbuild.LogLevelSilent,
		Plugins:       []esbuild.Plugin{r.plugin(name, src, dir)},
	}

	result := esbuild.Build(opts)

	if len(result.Errors) > 0 {
		var msgs []string
		for _, e := range result.Errors {
			msg := e.Text
			if e.Location != nil {
				msg = fmt.Sprintf("%s:%d:%d: %s", e.Location.File, e.Location.Line, e.Location.Column, e.Text)
			}
			msgs = append(msgs, msg)
		}
		return "", fmt.Errorf("bundling %s: %s", name, strings.Join(msgs, "; "))
	}

	if len(result.OutputFiles) == 0 {
		return "", fmt.Errorf("bundling %s produced no output", name)
	}

	return wrapModule(name, string(result.OutputFiles[0].Contents)), nil
}

// plugin resolves the virtual entry to src and host module names to the
// globals installed by Define.
func (r *Registry) plugin(name, src, dir string) esbuild.Plugin {
	return esbuild.Plugin{
		Name: "jshost",
		Setup: func(build esbuild.PluginBuild) {
			build.OnResolve(esbuild.OnResolveOptions{Filter: "^" + entryPrefix},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					return esbuild.OnResolveResult{
						Path:      strings.TrimPrefix(args.Path, entryPrefix),
						Namespace: entryNamespace,
					}, nil
				})

			build.OnLoad(esbuild.OnLoadOptions{Filter: ".*", Namespace: entryNamespace},
				func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
					contents := src
					return esbuild.OnLoadResult{
						Contents:   &contents,
						ResolveDir: dir,
						Loader:     esbuild.LoaderJS,
					}, nil
				})

			build.OnResolve(esbuild.OnResolveOptions{Filter: ".*"},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					if _, ok := r.Exports(args.Path); !ok {
						return esbuild.OnResolveResult{}, nil
					}
					return esbuild.OnResolveResult{Path: args.Path, Namespace: hostNamespace}, nil
				})

			build.OnLoad(esbuild.OnLoadOptions{Filter: ".*", Namespace: hostNamespace},
				func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
					names, ok := r.Exports(args.Path)
					if !ok {
						return esbuild.OnLoadResult{}, fmt.Errorf("host module %q is not defined", args.Path)
					}
					contents := hostModuleSource(args.Path, names)
					return esbuild.OnLoadResult{Contents: &contents, Loader: esbuild.LoaderJS}, nil
				})
		},
	}
}

// hostModuleSource is the ES module text standing in for a host module.
func hostModuleSource(name string, exports []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "const m = globalThis.__host_modules[%s];\n", core.JsEscape(name))
	for _, e := range exports {
		if e == "default" {
			continue
		}
		fmt.Fprintf(&b, "export const %s = m[%s];\n", e, core.JsEscape(e))
	}
	b.WriteString("export default m;\n")
	return b.String()
}

// wrapModule runs a bundled module inside an async function so top-level
// await works in a classic script, and records how it settled.
func wrapModule(name, code string) string {
	return fmt.Sprintf(`(function() {
	globalThis.__module_state = globalThis.__module_state || {};
	globalThis.__module_exports = globalThis.__module_exports || {};
	var st = globalThis.__module_state[%[1]s] = { done: false, error: null };
	(async function() {
%[2]s
	})().then(function() {
		st.done = true;
	}, function(e) {
		var msg = String(e);
		var stack = (e && e.stack) ? String(e.stack) : "";
		st.done = true;
		st.error = stack.indexOf(msg) === 0 ? stack : (stack ? msg + "\n" + stack : msg);
	});
})();
`, core.JsEscape(name), code)
}

// StatusJS returns an expression evaluating to "pending", "ok" or the
// error text of the named module.
func StatusJS(name string) string {
	return fmt.Sprintf(`(function() {
	var st = (globalThis.__module_state || {})[%s];
	if (!st) return "missing";
	if (!st.done) return "pending";
	return st.error === null ? "ok" : "error:" + st.error;
})()`, core.JsEscape(name))
}
