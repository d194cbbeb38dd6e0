package ctl

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"goclk/host/serial"
)

// SessionConfig is the optional JSON session file for goclk-ctl. Any field
// left out falls back to a default.
type SessionConfig struct {
	Device          string `json:"device"`
	Baud            int    `json:"baud"`
	TimeoutMs       int    `json:"timeout_ms"`
	WatchIntervalMs int    `json:"watch_interval_ms"`
}

// LoadConfig parses a JSON session configuration.
func LoadConfig(jsonData []byte) (*SessionConfig, error) {
	var config SessionConfig

	if err := json.Unmarshal(jsonData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&config)

	return &config, nil
}

// LoadConfigFile reads and parses a JSON session configuration file.
func LoadConfigFile(path string) (*SessionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return LoadConfig(data)
}

// DefaultConfig returns a session configuration with every default applied.
func DefaultConfig() *SessionConfig {
	config := &SessionConfig{}
	applyDefaults(config)
	return config
}

// applyDefaults fills in missing configuration values.
func applyDefaults(config *SessionConfig) {
	if config.Device == "" {
		config.Device = "/dev/ttyACM0"
	}
	if config.Baud == 0 {
		config.Baud = 115200
	}
	if config.TimeoutMs == 0 {
		config.TimeoutMs = 2000
	}
	if config.WatchIntervalMs == 0 {
		config.WatchIntervalMs = 1000
	}
}

// SerialConfig converts the session settings to serial port settings.
func (c *SessionConfig) SerialConfig() *serial.Config {
	cfg := serial.DefaultConfig(c.Device)
	cfg.Baud = c.Baud
	return cfg
}

// Timeout returns the per-request reply timeout.
func (c *SessionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// WatchInterval returns the status polling interval.
func (c *SessionConfig) WatchInterval() time.Duration {
	return time.Duration(c.WatchIntervalMs) * time.Millisecond
}
