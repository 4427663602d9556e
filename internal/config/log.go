// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package config

import (
	"fmt"
	"log/slog"
	"os"

	"hermannm.dev/devlog"
)

// LogConfig selects the slog handler used across the CLI and local
// control API.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // console, json
}

func (lc *LogConfig) Validate() error {
	switch lc.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unsupported log level: %s", lc.Level)
	}
	switch lc.Format {
	case "", "console", "json":
	default:
		return fmt.Errorf("unsupported log format: %s (must be 'console' or 'json')", lc.Format)
	}
	return nil
}

func (lc *LogConfig) level() slog.Level {
	switch lc.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Apply installs the configured handler as the default slog logger.
func (lc *LogConfig) Apply() {
	opts := &slog.HandlerOptions{Level: lc.level()}
	var handler slog.Handler
	if lc.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = devlog.NewHandler(os.Stderr, &devlog.Options{Level: lc.level()})
	}
	slog.SetDefault(slog.New(handler))
}
