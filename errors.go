package jshost

import "errors"

var (
	// ErrNotFunction is returned by Call when the path does not name a
	// function.
	ErrNotFunction = errors.New("not a function")

	// ErrInvalidPath is returned by Call for a malformed dotted path.
	ErrInvalidPath = errors.New("invalid function path")

	// ErrModuleStalled is returned when a module or call result is still
	// pending but nothing is left that could settle it.
	ErrModuleStalled = errors.New("promise can never settle: no pending timers or host calls")

	// ErrTimeout is returned when synchronous script exceeds the
	// configured execution timeout.
	ErrTimeout = errors.New("script execution timed out")

	// ErrClosedHost is returned by methods called after Close.
	ErrClosedHost = errors.New("host is closed")
)
