package core

// Backend names the JavaScript engine compiled into the binary.
// QuickJS is the default; V8 is selected with -tags v8.
type Backend string

const (
	BackendQuickJS Backend = "quickjs"
	BackendV8      Backend = "v8"
)
