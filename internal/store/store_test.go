// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package store

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("gorm.Open: %v", err)
	}
	return db
}

func TestIdentityStoreSaveLoadDelete(t *testing.T) {
	db := setupTestDB(t)
	s, err := InitIdentityStore(db)
	if err != nil {
		t.Fatalf("InitIdentityStore: %v", err)
	}
	ctx := context.Background()

	if _, _, _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load on empty store: expected ErrNotFound, got %v", err)
	}

	if err := s.Save(ctx, []byte("cert"), []byte("key"), 3); err != nil {
		t.Fatalf("Save: %v", err)
	}
	cert, key, version, err := s.Load(ctx)
	if err != nil || string(cert) != "cert" || string(key) != "key" || version != 3 {
		t.Fatalf("Load = (%q, %q, %d, %v), want (cert, key, 3, nil)", cert, key, version, err)
	}

	if err := s.Save(ctx, []byte("cert2"), []byte("key2"), 4); err != nil {
		t.Fatalf("Save (overwrite): %v", err)
	}
	cert, _, version, err = s.Load(ctx)
	if err != nil || string(cert) != "cert2" || version != 4 {
		t.Fatalf("Load after overwrite = (%q, %d, %v)", cert, version, err)
	}

	if err := s.Delete(ctx); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, _, err := s.Load(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Load after Delete: expected ErrNotFound, got %v", err)
	}
}

func TestDeviceStoreUpsertListDelete(t *testing.T) {
	db := setupTestDB(t)
	s, err := InitDeviceStore(db)
	if err != nil {
		t.Fatalf("InitDeviceStore: %v", err)
	}
	ctx := context.Background()

	d := PairedDevice{ID: "10.0.0.5:6466", Name: "Living Room TV", Host: "10.0.0.5", ControlPort: 6466, Paired: true}
	if err := s.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get(ctx, d.ID)
	if err != nil || got.Name != "Living Room TV" {
		t.Fatalf("Get = (%+v, %v)", got, err)
	}

	d.Name = "Renamed TV"
	if err := s.Upsert(ctx, d); err != nil {
		t.Fatalf("Upsert (update): %v", err)
	}
	got, err = s.Get(ctx, d.ID)
	if err != nil || got.Name != "Renamed TV" {
		t.Fatalf("Get after update = (%+v, %v)", got, err)
	}

	all, err := s.List(ctx)
	if err != nil || len(all) != 1 {
		t.Fatalf("List = (%v, %v), want 1 device", all, err)
	}

	if err := s.Delete(ctx, d.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := s.Get(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Delete: expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete (already gone): expected ErrNotFound, got %v", err)
	}
}

func TestOpenAndPing(t *testing.T) {
	db := setupTestDB(t)
	state, err := Open(db)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := state.Ping(); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}
