// Package config holds the engine's process-wide tunables, loaded the same
// way the teacher loads its server config: a JSON-tagged struct-of-structs
// with a DefaultConfig and a LoadConfigOrDefault that falls back gracefully
// when no file is present.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Config is the engine's full set of tunables.
type Config struct {
	Transport TransportConfig `json:"transport"`
	Log       LogConfig       `json:"log"`
	Schedule  ScheduleConfig  `json:"schedule"`
	Request   RequestConfig   `json:"request"`
	MCP       MCPConfig       `json:"mcp"`
}

// TransportConfig controls how cmd/engine listens for the host.
type TransportConfig struct {
	// Network is "stdio" (read/write the process's own stdin/stdout, the
	// default for a sandboxed child process) or "unix"/"tcp" for a socket.
	Network string `json:"network"`
	Address string `json:"address"`
}

// LogConfig mirrors the teacher's LogConfig shape (level/format), used by
// the plain `log` package diagnostics pkg/engine emits (the engine's own
// event log is explicitly out of scope per spec.md §1 as an external
// product, but ambient diagnostic logging of the process itself is not).
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// ScheduleConfig tunes pkg/schedule's recompute loop.
type ScheduleConfig struct {
	// RecomputeLimit is how many times one node may recompute within a
	// single pass before it is reported as CircularReference. validate
	// rejects values below 1. pkg/schedule does not read this field: its
	// loop uses its own recomputeLimit constant (50, the same default).
	RecomputeLimit int `json:"recompute_limit"`
}

// RequestConfig tunes the REQUEST() idempotency cache (spec.md §5).
type RequestConfig struct {
	// MaxPending is a cap on how many distinct in-flight REQUEST() calls
	// to track; validate rejects values below 1. pkg/engine does not read
	// this field, and its pending-request table has no size limit.
	MaxPending int `json:"max_pending"`
}

// MCPConfig configures the read-only pkg/mcpapi debugging front-end.
type MCPConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// DefaultConfig returns the engine's default tunables.
func DefaultConfig() *Config {
	return &Config{
		Transport: TransportConfig{
			Network: "stdio",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Schedule: ScheduleConfig{
			RecomputeLimit: 50,
		},
		Request: RequestConfig{
			MaxPending: 1000,
		},
		MCP: MCPConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    8930,
		},
	}
}

// LoadConfig reads and validates a JSON config file, overlaying it onto
// DefaultConfig so an incomplete file still yields sane values for anything
// it omits.
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		return DefaultConfig(), nil
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config: file does not exist: %s", configPath)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: read failed: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse failed: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigOrDefault tries ENGINE_CONFIG, then a couple of conventional
// paths, falling back to DefaultConfig() if none load — same shape as the
// teacher's LoadConfigOrDefault.
func LoadConfigOrDefault() *Config {
	if envPath := os.Getenv("ENGINE_CONFIG"); envPath != "" {
		if cfg, err := LoadConfig(envPath); err == nil {
			return cfg
		}
	}
	for _, p := range []string{"config.json", "./config/config.json"} {
		if abs, err := filepath.Abs(p); err == nil {
			if cfg, err := LoadConfig(abs); err == nil {
				return cfg
			}
		}
	}
	return DefaultConfig()
}

func validate(cfg *Config) error {
	switch cfg.Transport.Network {
	case "stdio", "unix", "tcp":
	default:
		return fmt.Errorf("config: unsupported transport network %q", cfg.Transport.Network)
	}
	if cfg.Schedule.RecomputeLimit < 1 {
		return fmt.Errorf("config: schedule.recompute_limit must be positive, got %d", cfg.Schedule.RecomputeLimit)
	}
	if cfg.Request.MaxPending < 1 {
		return fmt.Errorf("config: request.max_pending must be positive, got %d", cfg.Request.MaxPending)
	}
	if cfg.MCP.Enabled && (cfg.MCP.Port < 1 || cfg.MCP.Port > 65535) {
		return fmt.Errorf("config: invalid mcp port %d", cfg.MCP.Port)
	}
	return nil
}
