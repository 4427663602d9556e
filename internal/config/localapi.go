// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package config

import (
	"errors"
	"log/slog"
)

// LocalAPIConfig configures the loopback observability/control HTTP
// surface described in SPEC_FULL.md §4.7. It is never exposed to the
// Android TV Remote wire protocol itself.
type LocalAPIConfig struct {
	IP   string `mapstructure:"ip"`
	Port string `mapstructure:"port"`
}

// ListenAddress returns the concatenated IP:Port address to listen on.
func (h *LocalAPIConfig) ListenAddress() string {
	return h.IP + ":" + h.Port
}

func (h *LocalAPIConfig) Validate() error {
	slog.Debug("validating local API configuration", "ip", h.IP, "port", h.Port)
	if h.IP == "" {
		return errors.New("the local control API's IP address is required")
	}
	if h.Port == "" {
		return errors.New("the local control API's port is required")
	}
	return nil
}
