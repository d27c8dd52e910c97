//go:build v8

package jshost

import (
	"github.com/cryguy/jshost/internal/core"
	"github.com/cryguy/jshost/internal/v8engine"
)

const backend = core.BackendV8

func newRuntime(cfg core.HostConfig) (core.JSRuntime, error) {
	return v8engine.New(cfg)
}
