package jshost

import (
	"github.com/cryguy/jshost/internal/bridge"
	"github.com/cryguy/jshost/internal/channel"
	"github.com/cryguy/jshost/internal/core"
)

// Type aliases re-exporting internal types so embedders can use
// jshost.Config, jshost.Args, etc. without importing internal packages.

type Config = core.HostConfig
type ScriptError = core.ScriptError
type Backend = core.Backend
type Args = bridge.Args
type Result = bridge.Result
type Adapter = bridge.Adapter
type AdapterFunc = bridge.AdapterFunc
type Func = bridge.Func
type Recorder = bridge.Recorder

type Sender[T any] = channel.Sender[T]
type Receiver[T any] = channel.Receiver[T]
type OneshotSender[T any] = channel.OneshotSender[T]
type OneshotReceiver[T any] = channel.OneshotReceiver[T]

// Errors re-exported from the channel package.
var (
	ErrClosed          = channel.ErrClosed
	ErrAlreadyResolved = channel.ErrAlreadyResolved
)

// NewChannel returns both ends of an unbounded FIFO queue.
func NewChannel[T any]() (*Sender[T], *Receiver[T]) {
	return channel.New[T]()
}

// NewOneshot returns both ends of a single-use signal.
func NewOneshot[T any]() (*OneshotSender[T], *OneshotReceiver[T]) {
	return channel.Oneshot[T]()
}
