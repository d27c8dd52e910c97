//go:build !v8

package jshost

import (
	"github.com/cryguy/jshost/internal/core"
	"github.com/cryguy/jshost/internal/quickjs"
)

const backend = core.BackendQuickJS

func newRuntime(cfg core.HostConfig) (core.JSRuntime, error) {
	return quickjs.New(cfg)
}
