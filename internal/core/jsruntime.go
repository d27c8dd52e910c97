package core

// JSRuntime is one engine instance (QuickJS, or V8 with -tags v8). Only
// Interrupt may be called concurrently; the host serializes everything else.
type JSRuntime interface {
	Eval(js string) error
	EvalString(js string) (string, error)
	EvalBool(js string) (bool, error)
	EvalInt(js string) (int, error)

	// EvalGlobal runs js as a global script so let and const bindings
	// survive between calls, and stores the completion value in
	// globalThis[name].
	EvalGlobal(js, name string) error

	// RegisterFunc exposes a Go function as a global. See HostFunc for the
	// accepted signatures. A non-nil error result is thrown as a TypeError.
	RegisterFunc(name string, fn any) error

	// RunMicrotasks runs queued promise jobs until the queue is empty.
	RunMicrotasks()

	Interrupt()
	Close() error
}
