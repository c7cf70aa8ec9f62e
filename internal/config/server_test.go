package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerConfig_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`tools_dir = "/opt/tools"`), 0o644))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "/opt/tools", cfg.ToolsDir)
	assert.Equal(t, "127.0.0.1:8765", cfg.Bind)
	assert.Equal(t, 16, cfg.Pool.MaxTotalShells)
	assert.Equal(t, 1000, cfg.Monitor.HistoryCapacity)
}

func TestLoadServerConfig_HonorsExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
bind = "0.0.0.0:9000"
no_sandbox = true
high_security = true

[pool]
max_total_shells = 4

[monitor]
history_capacity = 50
`), 0o644))

	cfg, err := LoadServerConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9000", cfg.Bind)
	assert.True(t, cfg.NoSandbox)
	assert.True(t, cfg.HighSecurity)
	assert.Equal(t, 4, cfg.Pool.MaxTotalShells)
	assert.Equal(t, 50, cfg.Monitor.HistoryCapacity)
	assert.Equal(t, 300, cfg.Monitor.DefaultTimeoutSeconds)
}
