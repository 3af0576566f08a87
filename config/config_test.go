package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 60*time.Second, cfg.Keepalive())
	assert.Zero(t, cfg.IdleTimeout())
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cattled.json")
	data := `{"listen": "127.0.0.1:5000", "idle_timeout_seconds": 300, "accounts_backend": "sqlite", "accounts_path": "/var/lib/cattle/accounts.db"}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:5000", cfg.Listen)
	assert.Equal(t, 5*time.Minute, cfg.IdleTimeout())
	assert.Equal(t, BackendSQLite, cfg.AccountsBackend)
	assert.Equal(t, "/var/lib/cattle/accounts.db", cfg.AccountsPath)

	// Untouched fields keep their defaults.
	assert.Equal(t, 60, cfg.KeepaliveSeconds)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cattled.json")
	require.NoError(t, os.WriteFile(path, []byte("{listen"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = "" }},
		{"zero keepalive", func(c *Config) { c.KeepaliveSeconds = 0 }},
		{"negative idle", func(c *Config) { c.IdleTimeoutSeconds = -1 }},
		{"idle shorter than keepalive", func(c *Config) { c.IdleTimeoutSeconds = 30 }},
		{"negative max connections", func(c *Config) { c.MaxConnections = -1 }},
		{"zero send queue", func(c *Config) { c.SendQueueBytes = 0 }},
		{"send queue smaller than a packet", func(c *Config) { c.SendQueueBytes = 64 }},
		{"zero read size", func(c *Config) { c.ReadSize = 0 }},
		{"unknown backend", func(c *Config) { c.AccountsBackend = "ldap" }},
		{"file without path", func(c *Config) { c.AccountsPath = "" }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Default()
	cfg.AccountsBackend = BackendMemory
	cfg.AccountsPath = ""
	assert.NoError(t, cfg.Validate())
}
