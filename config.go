package jshost

import (
	"fmt"
	"os"

	"github.com/cryguy/jshost/internal/core"
	"gopkg.in/yaml.v3"
)

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		MemoryLimitMB:    256,
		ExecutionTimeout: 30000,
		MaxPending:       1024,
		MinInterval:      10,
		LogLevel:         "warn",
	}
}

// LoadConfig reads a YAML config file over DefaultConfig. An empty path
// returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func validateConfig(cfg core.HostConfig) error {
	switch {
	case cfg.MemoryLimitMB < 0:
		return fmt.Errorf("memory_limit_mb must not be negative")
	case cfg.ExecutionTimeout < 0:
		return fmt.Errorf("execution_timeout must not be negative")
	case cfg.MaxPending < 0:
		return fmt.Errorf("max_pending must not be negative")
	case cfg.MinInterval < 0:
		return fmt.Errorf("min_interval must not be negative")
	}
	return nil
}
