// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package config

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DatabaseConfig selects and opens the persistence backend behind the
// Identity Store and the paired-device list. SQLite is the default,
// file-backed choice the spec allows in place of an OS keychain;
// Postgres is available for a controller shared across a managed
// deployment.
type DatabaseConfig struct {
	Type string `mapstructure:"type"`
	DSN  string `mapstructure:"dsn"`
}

// GetDB opens the configured dialect and returns a ready *gorm.DB.
func (dc *DatabaseConfig) GetDB() (*gorm.DB, error) {
	dialect := strings.ToLower(dc.Type)
	slog.Debug("initializing database", "type", dialect, "dsn", dc.DSN)
	if dc.DSN == "" {
		slog.Error("database DSN is required but not provided")
		return nil, errors.New("database configuration error: dsn is required")
	}
	if dialect != "sqlite" && dialect != "postgres" {
		slog.Error("unsupported database type", "type", dialect, "supported", []string{"sqlite", "postgres"})
		return nil, fmt.Errorf("unsupported database type: %s (must be 'sqlite' or 'postgres')", dialect)
	}

	var dialector gorm.Dialector
	switch dialect {
	case "sqlite":
		dialector = sqlite.Open(dc.DSN)
	case "postgres":
		dialector = postgres.Open(dc.DSN)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("opening %s database: %w", dialect, err)
	}

	if dialect == "sqlite" {
		var sqlDB *sql.DB
		if sqlDB, err = db.DB(); err == nil {
			_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON")
		}
	}
	return db, nil
}

// Validate checks that the configuration is usable without opening a
// connection.
func (dc *DatabaseConfig) Validate() error {
	dialect := strings.ToLower(dc.Type)
	if dialect != "sqlite" && dialect != "postgres" {
		return fmt.Errorf("unsupported database type: %s (must be 'sqlite' or 'postgres')", dc.Type)
	}
	if dc.DSN == "" {
		return errors.New("database configuration error: dsn is required")
	}
	return nil
}
