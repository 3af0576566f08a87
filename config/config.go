// Package config holds the chat server settings.
package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/cattlechat/wire"
)

// Account directory backends.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config is the server configuration. The JSON form uses whole seconds for
// every duration.
type Config struct {
	Listen string `json:"listen"`

	KeepaliveSeconds    int `json:"keepalive_seconds"`
	IdleTimeoutSeconds  int `json:"idle_timeout_seconds"` // 0 never drops idle sessions
	WriteTimeoutSeconds int `json:"write_timeout_seconds"`
	MaxConnections      int `json:"max_connections"`  // 0 is unlimited
	SendQueueBytes      int `json:"send_queue_bytes"` // unsent bytes before the session is dropped
	ReadSize            int `json:"read_size"`

	AccountsBackend string `json:"accounts_backend"` // memory, file or sqlite
	AccountsPath    string `json:"accounts_path"`

	LogLevel  string `json:"log_level"`  // debug, info, warn, error
	LogFormat string `json:"log_format"` // text or json
	Color     bool   `json:"color"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:              ":4000",
		KeepaliveSeconds:    60,
		WriteTimeoutSeconds: 30,
		SendQueueBytes:      1 << 20,
		ReadSize:            4096,
		AccountsBackend:     BackendFile,
		AccountsPath:        "accounts.txt",
		LogLevel:            "info",
		LogFormat:           "text",
		Color:               true,
	}
}

// Load reads a JSON file over the defaults. Fields missing from the file keep
// their default value. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrapf(err, "read config %s", path)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.KeepaliveSeconds <= 0 {
		return errors.Errorf("keepalive must be positive, got %d", c.KeepaliveSeconds)
	}
	if c.IdleTimeoutSeconds < 0 {
		return errors.Errorf("idle timeout must not be negative, got %d", c.IdleTimeoutSeconds)
	}
	if c.IdleTimeoutSeconds > 0 && c.IdleTimeoutSeconds <= c.KeepaliveSeconds {
		return errors.Errorf("idle timeout (%ds) must be longer than the keepalive (%ds)", c.IdleTimeoutSeconds, c.KeepaliveSeconds)
	}
	if c.WriteTimeoutSeconds < 0 {
		return errors.Errorf("write timeout must not be negative, got %d", c.WriteTimeoutSeconds)
	}
	if c.MaxConnections < 0 {
		return errors.Errorf("max connections must not be negative, got %d", c.MaxConnections)
	}
	if c.SendQueueBytes < wire.MaxPacketSize {
		return errors.Errorf("send queue must hold at least one packet (%d bytes), got %d", wire.MaxPacketSize, c.SendQueueBytes)
	}
	if c.ReadSize <= 0 {
		return errors.New("read size must be positive")
	}

	switch c.AccountsBackend {
	case BackendMemory:
	case BackendFile, BackendSQLite:
		if c.AccountsPath == "" {
			return errors.Errorf("accounts backend %s needs a path", c.AccountsBackend)
		}
	default:
		return errors.Errorf("unknown accounts backend %q", c.AccountsBackend)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return errors.Errorf("unknown log format %q", c.LogFormat)
	}
	return nil
}

// Keepalive returns the keepalive interval.
func (c *Config) Keepalive() time.Duration {
	return time.Duration(c.KeepaliveSeconds) * time.Second
}

// IdleTimeout returns the idle timeout. Zero disables it.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

// WriteTimeout returns the per-write deadline. Zero disables it.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutSeconds) * time.Second
}
