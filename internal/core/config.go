package core

import "time"

// HostConfig holds runtime configuration for a script host.
type HostConfig struct {
	MemoryLimitMB    int    `yaml:"memory_limit_mb"`   // engine heap limit, 0 = unlimited
	ExecutionTimeout int    `yaml:"execution_timeout"` // milliseconds a single synchronous evaluation may run, 0 = unlimited
	MaxPending       int    `yaml:"max_pending"`       // max unsettled bridge calls, 0 = unlimited
	MinInterval      int    `yaml:"min_interval"`      // milliseconds, floor for setInterval
	HistoryFile      string `yaml:"history_file"`      // REPL history, empty = ~/.jshost_history
	LogLevel         string `yaml:"log_level"`         // trace, debug, info, warn, error
}

// EvalTimeout returns ExecutionTimeout as a duration.
func (c HostConfig) EvalTimeout() time.Duration {
	return time.Duration(c.ExecutionTimeout) * time.Millisecond
}

// IntervalFloor returns MinInterval as a duration, defaulting to 10ms.
func (c HostConfig) IntervalFloor() time.Duration {
	if c.MinInterval <= 0 {
		return 10 * time.Millisecond
	}
	return time.Duration(c.MinInterval) * time.Millisecond
}
