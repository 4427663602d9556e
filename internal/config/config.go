// SPDX-FileCopyrightText: (C) 2025 Red Hat Inc.
// SPDX-License-Identifier: Apache 2.0

// Package config holds the controller's configuration surface: the
// persistence backend, the local control API's bind address, and log
// output, loaded via viper from a YAML file (whose path comes from the
// CLI's --config flag) and environment variables.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Config holds the full contents of the configuration file.
type Config struct {
	Log      LogConfig      `mapstructure:"log"`
	DB       DatabaseConfig `mapstructure:"db"`
	LocalAPI LocalAPIConfig `mapstructure:"local_api"`
	Client   ClientConfig   `mapstructure:"client"`
}

// ClientConfig holds defaults for the pairing/remote-session client
// itself, including the identity this app presents to a TV in its
// RemoteConfigure DeviceInfo (spec.md §4.6).
type ClientConfig struct {
	ControlPort    int    `mapstructure:"control_port"`
	PairingPort    int    `mapstructure:"pairing_port"`
	PairingTimeout int    `mapstructure:"pairing_timeout_seconds"`
	DeviceModel    string `mapstructure:"device_model"`
	DeviceVendor   string `mapstructure:"device_vendor"`
	PackageID      string `mapstructure:"package_id"`
}

func (c *ClientConfig) applyDefaults() {
	if c.ControlPort == 0 {
		c.ControlPort = 6466
	}
	if c.PairingPort == 0 {
		c.PairingPort = 6467
	}
	if c.PairingTimeout == 0 {
		c.PairingTimeout = 10
	}
	if c.DeviceModel == "" {
		c.DeviceModel = "atvremote-go"
	}
	if c.DeviceVendor == "" {
		c.DeviceVendor = "atvremote"
	}
	if c.PackageID == "" {
		c.PackageID = "dev.atvremote.cli"
	}
}

// Validate checks every sub-configuration.
func (c *Config) Validate() error {
	slog.Debug("validating configuration")
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("log configuration: %w", err)
	}
	if err := c.DB.Validate(); err != nil {
		return fmt.Errorf("database configuration: %w", err)
	}
	if err := c.LocalAPI.Validate(); err != nil {
		return fmt.Errorf("local API configuration: %w", err)
	}
	slog.Info("configuration validated successfully")
	return nil
}

// Load reads configuration from built-in defaults, configPath (if
// non-empty), and the ATVREMOTE_-prefixed environment, in increasing
// precedence.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("atvremote")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("db.type", "sqlite")
	v.SetDefault("db.dsn", "atvremote.db")
	v.SetDefault("local_api.ip", "127.0.0.1")
	v.SetDefault("local_api.port", "8967")
	v.SetDefault("client.control_port", 6466)
	v.SetDefault("client.pairing_port", 6467)
	v.SetDefault("client.pairing_timeout_seconds", 10)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configPath, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	cfg.Client.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
