package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer(nil)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:5555", cfg.Listen)
	assert.Equal(t, 5*time.Second, cfg.HandshakeTimeout)
	assert.Equal(t, 5*time.Minute, cfg.SessionTimeout)
	assert.Equal(t, 30*time.Second, cfg.TransferTimeout)
	assert.Equal(t, 1024, cfg.ChunkSize)
	assert.Equal(t, time.Second, cfg.AcceptBackoff)
	assert.Equal(t, time.Minute, cfg.MonitorInterval)
	assert.True(t, cfg.KeepAlive)
	assert.False(t, cfg.Debug)
}

func TestLoadServerFileAndFlags(t *testing.T) {
	path := filepath.Join(t.TempDir(), "devctl.toml")
	conf := `
listen = "127.0.0.1:6000"
files_dir = "/data/files"
session_timeout = "2m"
debug = true
`
	require.NoError(t, os.WriteFile(path, []byte(conf), 0644))

	cfg, err := LoadServer([]string{"-config", path, "-listen", "127.0.0.1:7000"})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Listen, "flag wins over file")
	assert.Equal(t, "/data/files", cfg.FilesDir)
	assert.Equal(t, 2*time.Minute, cfg.SessionTimeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, "./state", cfg.StateDir)
}

func TestLoadServerErrors(t *testing.T) {
	_, err := LoadServer([]string{"-config", filepath.Join(t.TempDir(), "missing.toml")})
	assert.Error(t, err)

	_, err = LoadServer([]string{"-chunk-size", "0"})
	assert.Error(t, err)
}
