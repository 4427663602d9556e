// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package store is the GORM-backed persistence layer behind the
// Identity Store and the paired-device list: the "file-backed
// implementation... acceptable where no OS keychain exists" that
// SPEC_FULL.md §3/§9 allow in place of a platform credential store.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// ErrNotFound is returned when a row a caller expected to exist is
// absent.
var ErrNotFound = errors.New("store: record not found")

// identityRow is the single-row table backing the Identity Store.
// RowKey is always identityRowKey: at most one identity is ever in
// use per client (spec.md §3).
type identityRow struct {
	RowKey             string `gorm:"primaryKey"`
	CertificateDER     []byte `gorm:"type:blob;not null"`
	PrivateKeyPKCS1DER []byte `gorm:"type:blob;not null"`
	FormatVersion      int    `gorm:"not null"`
	CreatedAt          time.Time `gorm:"autoCreateTime:milli"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime:milli"`
}

func (identityRow) TableName() string { return "identities" }

const identityRowKey = "default"

// IdentityStore is the persistence backend for internal/identity.
type IdentityStore struct {
	DB *gorm.DB
}

// InitIdentityStore migrates the identities table and returns a ready
// IdentityStore.
func InitIdentityStore(db *gorm.DB) (*IdentityStore, error) {
	if err := db.AutoMigrate(&identityRow{}); err != nil {
		slog.Error("failed to migrate identity schema", "error", err)
		return nil, fmt.Errorf("migrating identity schema: %w", err)
	}
	return &IdentityStore{DB: db}, nil
}

// Load returns the persisted identity, or ErrNotFound if none exists.
func (s *IdentityStore) Load(ctx context.Context) (certDER, keyDER []byte, formatVersion int, err error) {
	var row identityRow
	if err := s.DB.WithContext(ctx).Where("row_key = ?", identityRowKey).First(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, 0, ErrNotFound
		}
		return nil, nil, 0, fmt.Errorf("loading identity: %w", err)
	}
	return row.CertificateDER, row.PrivateKeyPKCS1DER, row.FormatVersion, nil
}

// Save upserts the identity row.
func (s *IdentityStore) Save(ctx context.Context, certDER, keyDER []byte, formatVersion int) error {
	row := identityRow{
		RowKey:             identityRowKey,
		CertificateDER:     certDER,
		PrivateKeyPKCS1DER: keyDER,
		FormatVersion:      formatVersion,
	}
	err := s.DB.WithContext(ctx).
		Where("row_key = ?", identityRowKey).
		Assign(row).
		FirstOrCreate(&row).Error
	if err != nil {
		if isDuplicateError(err) {
			slog.Debug("identity row already exists, retrying as update")
			return s.DB.WithContext(ctx).Model(&identityRow{}).Where("row_key = ?", identityRowKey).Updates(row).Error
		}
		return fmt.Errorf("saving identity: %w", err)
	}
	return nil
}

// Delete removes the persisted identity, e.g. during the format
// version upgrade sweep in spec.md §4.3.
func (s *IdentityStore) Delete(ctx context.Context) error {
	if err := s.DB.WithContext(ctx).Where("row_key = ?", identityRowKey).Delete(&identityRow{}).Error; err != nil {
		return fmt.Errorf("deleting identity: %w", err)
	}
	return nil
}

// isDuplicateError checks if err is a unique-constraint violation from
// either supported dialect.
func isDuplicateError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrConstraint
	}
	return false
}
