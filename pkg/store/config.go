// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 Glovetact

package store

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceConfig is the host-side device description loaded at startup. On
// real hardware the equivalent lives in the settings record; the host tools
// read it from YAML.
type DeviceConfig struct {
	Role          string `yaml:"role"`
	PeerAddr      string `yaml:"peer_addr"`
	SerialPort    string `yaml:"serial_port"`
	BaudRate      int    `yaml:"baud_rate"`
	PeerURL       string `yaml:"peer_url"`
	Debug         bool   `yaml:"debug"`
	ProfileDir    string `yaml:"profile_dir"`
	ActiveProfile uint8  `yaml:"active_profile"`
}

// DefaultDeviceConfig returns a usable primary-side configuration.
func DefaultDeviceConfig() DeviceConfig {
	return DeviceConfig{
		Role:       "primary",
		BaudRate:   115200,
		ProfileDir: "profiles",
	}
}

// LoadDeviceConfig reads and validates a YAML device configuration.
func LoadDeviceConfig(path string) (DeviceConfig, error) {
	cfg := DefaultDeviceConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %v", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *DeviceConfig) Validate() error {
	if _, err := ParseRole(c.Role); err != nil {
		return err
	}
	if c.SerialPort != "" && c.PeerURL != "" {
		return fmt.Errorf("store: serial_port and peer_url are mutually exclusive")
	}
	if c.BaudRate <= 0 {
		return fmt.Errorf("store: baud_rate %d invalid", c.BaudRate)
	}
	return nil
}
