// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package store

import (
	"fmt"
	"log/slog"

	"gorm.io/gorm"
)

// State groups every persisted table the controller depends on, the
// way the teacher's db.State groups its own GORM-backed tables.
type State struct {
	DB       *gorm.DB
	Identity *IdentityStore
	Devices  *DeviceStore
}

// Open opens db and migrates every schema this repository needs.
func Open(db *gorm.DB) (*State, error) {
	identity, err := InitIdentityStore(db)
	if err != nil {
		return nil, err
	}
	devices, err := InitDeviceStore(db)
	if err != nil {
		return nil, err
	}
	slog.Debug("store initialized")
	return &State{DB: db, Identity: identity, Devices: devices}, nil
}

// Ping verifies the underlying connection is alive, mirroring the
// teacher's health-check idiom.
func (s *State) Ping() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return fmt.Errorf("store: obtaining sql.DB: %w", err)
	}
	return sqlDB.Ping()
}
