// Package config loads and hot-reloads the telnet server's JSON
// configuration.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// ServerConfig holds the Multiplexer's tunables, loaded from
// config.json and merged onto defaultServerConfig() before unmarshalling so
// that a partial file only overrides the fields it names.
type ServerConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`

	MaxConnections int `json:"maxConnections"`
	ListenBacklog  int `json:"listenBacklog"`
	RecvBlockBytes int `json:"recvBlockBytes"`
	SBMaxLenBytes  int `json:"sbMaxLenBytes"`

	PollIntervalMillis int `json:"pollIntervalMillis"`

	// IdleTimeoutMinutes deactivates a session whose last input is older
	// than this many minutes. 0 disables idle reaping.
	IdleTimeoutMinutes int `json:"idleTimeoutMinutes"`
	// IdleSweepIntervalSeconds controls how often the reaper scans for
	// idle sessions.
	IdleSweepIntervalSeconds int `json:"idleSweepIntervalSeconds"`
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:                     "0.0.0.0",
		Port:                     2323,
		MaxConnections:           1000,
		ListenBacklog:            5,
		RecvBlockBytes:           4096,
		SBMaxLenBytes:            1024,
		PollIntervalMillis:       200,
		IdleTimeoutMinutes:       15,
		IdleSweepIntervalSeconds: 30,
	}
}

// LoadServerConfig reads config.json from configPath, merging it onto
// defaultServerConfig(). A missing file is not an error: the defaults
// are returned as-is, matching the teacher's "ship usable zero-config
// defaults" convention.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	filePath := filepath.Join(configPath, "config.json")
	defaults := defaultServerConfig()

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Printf("WARN: config.json not found at %s, using default settings", filePath)
			return defaults, nil
		}
		return defaults, fmt.Errorf("read config file %s: %w", filePath, err)
	}

	cfg := defaults
	if err := json.Unmarshal(data, &cfg); err != nil {
		return defaults, fmt.Errorf("parse config JSON from %s: %w", filePath, err)
	}

	log.Printf("INFO: loaded server configuration from %s", filePath)
	return cfg, nil
}

// SaveServerConfig writes cfg to configPath/config.json, creating the
// directory if needed.
func SaveServerConfig(configPath string, cfg ServerConfig) error {
	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", configPath, err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	filePath := filepath.Join(configPath, "config.json")
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return fmt.Errorf("write config file %s: %w", filePath, err)
	}
	return nil
}

// PollInterval converts PollIntervalMillis to a time.Duration.
func (c ServerConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMillis) * time.Millisecond
}

// IdleTimeout converts IdleTimeoutMinutes to a time.Duration. Zero
// means idle reaping is disabled.
func (c ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMinutes) * time.Minute
}

// IdleSweepInterval converts IdleSweepIntervalSeconds to a time.Duration.
func (c ServerConfig) IdleSweepInterval() time.Duration {
	return time.Duration(c.IdleSweepIntervalSeconds) * time.Second
}
