package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/earn9/autopsy/internal/config"
	"github.com/earn9/autopsy/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "healthmond.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func TestLoad(t *testing.T) {
	configPath := writeConfigFile(t, `
log_level = "debug"
enabled = true
write_interval = 2
lock_timeout = 10

[database]
host = "db.example.test"
port = 5433
user = "autopsy"
password = "secret"
name = "ServicesHealthMonitor"

[consul]
address = "consul.example.test:8500"
`)
	t.Setenv("HEALTHMOND_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.True(t, cfg.Enabled, "Expected Enabled true")
	assert.Equal(t, 2, cfg.WriteInterval, "Expected WriteInterval 2")
	assert.Equal(t, 10, cfg.LockTimeout, "Expected LockTimeout 10")
	assert.Equal(t, "db.example.test", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "autopsy", cfg.Database.User)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "ServicesHealthMonitor", cfg.Database.Name)
	assert.Equal(t, "consul.example.test:8500", cfg.Consul.Address)
	assert.True(t, cfg.IsMultiInstance())
}

func TestLoadDefaults(t *testing.T) {
	// Ensure no config file is used
	t.Setenv("HEALTHMOND_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
	assert.False(t, cfg.Enabled, "Expected default Enabled false")
	assert.Equal(t, config.DefaultWriteInterval, cfg.WriteInterval)
	assert.Equal(t, config.DefaultLockTimeout, cfg.LockTimeout)
	assert.Equal(t, config.DefaultDatabaseName, cfg.Database.Name)
	assert.Equal(t, config.DefaultDatabasePort, cfg.Database.Port)
	assert.Equal(t, config.DefaultConsulAddress, cfg.Consul.Address)
	assert.False(t, cfg.IsMultiInstance(), "Expected single-instance without a database host")
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	configPath := writeConfigFile(t, `
This is not a valid TOML file
`)
	t.Setenv("HEALTHMOND_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read config file")
}

func TestInvalidLogLevel(t *testing.T) {
	configPath := writeConfigFile(t, `
log_level = "invalid"
`)
	t.Setenv("HEALTHMOND_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidLogLevel, errors.CodeOf(err))
}

func TestInvalidWriteInterval(t *testing.T) {
	configPath := writeConfigFile(t, `
write_interval = 0
`)
	t.Setenv("HEALTHMOND_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidInterval, errors.CodeOf(err))
}

func TestDatabaseHostRequiresUser(t *testing.T) {
	configPath := writeConfigFile(t, `
[database]
host = "db.example.test"
`)
	t.Setenv("HEALTHMOND_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Equal(t, errors.ErrInvalidConfig, errors.CodeOf(err))
}

func TestLogLevelFlag(t *testing.T) {
	// Save original args and restore after test
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()

	os.Args = []string{"cmd", "--log-level", "debug"}
	t.Setenv("HEALTHMOND_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestSaveEnabledRoundTrip(t *testing.T) {
	configPath := writeConfigFile(t, `
enabled = false
`)
	t.Setenv("HEALTHMOND_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)
	require.False(t, cfg.Enabled)

	require.NoError(t, config.SaveEnabled(true))

	cfg, err = config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled, "Expected persisted Enabled true after reload")
}

func TestSaveEnabledWithoutConfigFile(t *testing.T) {
	t.Setenv("HEALTHMOND_CONFIG", "")

	_, err := config.Load()
	require.NoError(t, err)

	// Nothing to persist to; must not fail
	require.NoError(t, config.SaveEnabled(true))
}

func TestWatchCallbackCanPersistEnabled(t *testing.T) {
	configPath := writeConfigFile(t, `
enabled = false
`)
	t.Setenv("HEALTHMOND_CONFIG", configPath)

	_, err := config.Load()
	require.NoError(t, err)

	// The daemon persists the flag from inside the watch callback;
	// SaveEnabled must not block behind the watcher's own locking.
	saved := make(chan error, 1)
	var once sync.Once
	config.Watch(func(cfg *config.Config) {
		once.Do(func() {
			saved <- config.SaveEnabled(cfg.Enabled)
		})
	})

	err = os.WriteFile(configPath, []byte("enabled = true\n"), 0o600)
	require.NoError(t, err)

	select {
	case err := <-saved:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("SaveEnabled blocked inside the watch callback")
	}

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Enabled)
}

func TestLogLevelValidation(t *testing.T) {
	assert.True(t, config.LogLevel("debug").IsValid())
	assert.True(t, config.LogLevel("info").IsValid())
	assert.True(t, config.LogLevel("warn").IsValid())
	assert.True(t, config.LogLevel("error").IsValid())
	assert.False(t, config.LogLevel("trace").IsValid())
	assert.False(t, config.LogLevel("").IsValid())
}
