package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.ControlPort)
	assert.Equal(t, 5, cfg.ReconnectAttempts)
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelayMax)
	assert.Equal(t, 3*time.Second, cfg.FailureGrace)
	assert.Equal(t, 1280, cfg.Capture.Width)
	assert.Equal(t, "user", cfg.Capture.Facing)
	assert.NotEmpty(t, cfg.STUNServers)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "config"), 0o755))

	content := []byte(`
mode: debug
control_port: 9090
signal_url: ws://example.test/signal
reconnect_attempts: 2
capture:
  synthetic: true
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), content, 0o644))
	t.Setenv("CONFIG_ENV", "test")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9090, cfg.ControlPort)
	assert.Equal(t, "ws://example.test/signal", cfg.SignalURL)
	assert.Equal(t, 2, cfg.ReconnectAttempts)
	assert.True(t, cfg.Capture.Synthetic)
	// Values absent from the file keep their defaults.
	assert.Equal(t, time.Second, cfg.ReconnectDelay)
	assert.Equal(t, 1280, cfg.Capture.Width)
}
