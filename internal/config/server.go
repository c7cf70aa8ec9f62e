package config

import (
	"fmt"

	"github.com/BurntSushi/toml"
)

// PoolConfig controls the shell worker pool's sizing and sweep cadence.
type PoolConfig struct {
	MaxTotalShells             int `toml:"max_total_shells"`
	ShellSpawnTimeoutSeconds   int `toml:"shell_spawn_timeout_seconds"`
	ShellIdleTimeoutSeconds    int `toml:"shell_idle_timeout_seconds"`
	PoolCleanupIntervalSeconds int `toml:"pool_cleanup_interval_seconds"`
	HealthCheckIntervalSeconds int `toml:"health_check_interval_seconds"`
	HealthCheckTimeoutSeconds  int `toml:"health_check_timeout_seconds"`
}

// MonitorConfig controls the operation monitor's history buffer and
// default timeout.
type MonitorConfig struct {
	HistoryCapacity       int `toml:"history_capacity"`
	DefaultTimeoutSeconds int `toml:"default_timeout_seconds"`
}

// ServerConfig is the top-level server process configuration, loaded from
// a config.toml by cmd/ahma-server and then overlaid with its command-line
// flags and the AHMA_NO_SANDBOX environment variable. The bridge binary
// does not use it.
type ServerConfig struct {
	Bind         string `toml:"bind"`
	ToolsDir     string `toml:"tools_dir"`
	NoSandbox    bool   `toml:"no_sandbox"`
	HighSecurity bool   `toml:"high_security"`

	Pool    PoolConfig    `toml:"pool"`
	Monitor MonitorConfig `toml:"monitor"`
}

// LoadServerConfig decodes path as TOML into a ServerConfig, filling in
// defaults for any zero-valued field.
func LoadServerConfig(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *ServerConfig) applyDefaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8765"
	}
	if c.ToolsDir == "" {
		c.ToolsDir = "./tools"
	}
	if c.Pool.MaxTotalShells <= 0 {
		c.Pool.MaxTotalShells = 16
	}
	if c.Pool.ShellSpawnTimeoutSeconds <= 0 {
		c.Pool.ShellSpawnTimeoutSeconds = 5
	}
	if c.Pool.ShellIdleTimeoutSeconds <= 0 {
		c.Pool.ShellIdleTimeoutSeconds = 300
	}
	if c.Pool.PoolCleanupIntervalSeconds <= 0 {
		c.Pool.PoolCleanupIntervalSeconds = 30
	}
	if c.Pool.HealthCheckIntervalSeconds <= 0 {
		c.Pool.HealthCheckIntervalSeconds = 60
	}
	if c.Pool.HealthCheckTimeoutSeconds <= 0 {
		c.Pool.HealthCheckTimeoutSeconds = 5
	}
	if c.Monitor.HistoryCapacity <= 0 {
		c.Monitor.HistoryCapacity = 1000
	}
	if c.Monitor.DefaultTimeoutSeconds <= 0 {
		c.Monitor.DefaultTimeoutSeconds = 300
	}
}
