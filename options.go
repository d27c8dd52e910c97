package jshost

import (
	"io"

	"github.com/hashicorp/go-hclog"
)

// Option configures a Host.
type Option func(*Host)

// WithOutput sets where print, print_v and console write. Defaults to
// os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(h *Host) { h.out = w }
}

// WithErrorOutput sets where uncaught exceptions from timers and
// callbacks are reported. Defaults to os.Stderr.
func WithErrorOutput(w io.Writer) Option {
	return func(h *Host) { h.errOut = w }
}

// WithLogger sets the host logger. Components log through named
// sub-loggers.
func WithLogger(l hclog.Logger) Option {
	return func(h *Host) { h.log = l }
}

// WithRecorder journals every message crossing the send, receive and
// one-shot adapters.
func WithRecorder(r Recorder) Option {
	return func(h *Host) { h.recorder = r }
}
