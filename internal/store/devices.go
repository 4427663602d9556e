// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// PairedDevice is the persisted row backing a controller.Device.
type PairedDevice struct {
	ID          string `gorm:"primaryKey"` // host:port, per spec.md §3
	Name        string `gorm:"not null"`
	Host        string `gorm:"not null"`
	ControlPort int    `gorm:"not null"`
	Paired      bool   `gorm:"not null;index:idx_paired_devices_paired"`
	PairedAt    *time.Time
	CreatedAt   time.Time `gorm:"autoCreateTime:milli"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime:milli"`
}

func (PairedDevice) TableName() string { return "paired_devices" }

// DeviceStore is the persistence backend for the controller's
// paired-device list.
type DeviceStore struct {
	DB *gorm.DB
}

// InitDeviceStore migrates the paired_devices table.
func InitDeviceStore(db *gorm.DB) (*DeviceStore, error) {
	if err := db.AutoMigrate(&PairedDevice{}); err != nil {
		slog.Error("failed to migrate paired device schema", "error", err)
		return nil, fmt.Errorf("migrating paired device schema: %w", err)
	}
	return &DeviceStore{DB: db}, nil
}

// Upsert inserts or updates a device row by ID.
func (s *DeviceStore) Upsert(ctx context.Context, d PairedDevice) error {
	err := s.DB.WithContext(ctx).
		Where("id = ?", d.ID).
		Assign(d).
		FirstOrCreate(&d).Error
	if err != nil {
		if isDuplicateError(err) {
			return s.DB.WithContext(ctx).Model(&PairedDevice{}).Where("id = ?", d.ID).Updates(d).Error
		}
		return fmt.Errorf("upserting device %s: %w", d.ID, err)
	}
	return nil
}

// Get retrieves a single device by ID.
func (s *DeviceStore) Get(ctx context.Context, id string) (*PairedDevice, error) {
	var d PairedDevice
	if err := s.DB.WithContext(ctx).Where("id = ?", id).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting device %s: %w", id, err)
	}
	return &d, nil
}

// List returns every persisted device.
func (s *DeviceStore) List(ctx context.Context) ([]PairedDevice, error) {
	var devices []PairedDevice
	if err := s.DB.WithContext(ctx).Order("created_at asc").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("listing devices: %w", err)
	}
	return devices, nil
}

// Delete removes a device row by ID.
func (s *DeviceStore) Delete(ctx context.Context, id string) error {
	result := s.DB.WithContext(ctx).Where("id = ?", id).Delete(&PairedDevice{})
	if result.Error != nil {
		return fmt.Errorf("deleting device %s: %w", id, result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
