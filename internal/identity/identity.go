// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package identity is the client's certificate authority of one: it
// generates, persists, and reuses the RSA-2048 key pair and
// self-signed certificate presented as the TLS client identity during
// pairing and remote-session handshakes (spec.md §4.3).
package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/atvremote/atvremote-go/internal/atverr"
	"github.com/atvremote/atvremote-go/internal/certbuilder"
	"github.com/atvremote/atvremote-go/internal/store"
)

const rsaKeyBits = 2048

// CurrentFormatVersion is the certificate format version produced by
// the current certbuilder. Bumping it invalidates every persisted
// identity on next use, per spec.md §4.3 — the upgrade path for bugs
// in the ASN.1 builder.
const CurrentFormatVersion = 3

// ErrNoIdentity is atverr.ErrNoIdentity, re-exported so callers that
// only import identity don't also need atverr for the common case.
var ErrNoIdentity = atverr.ErrNoIdentity

// KeychainError wraps a backend failure from the credential store.
type KeychainError struct {
	Status error
}

func (e *KeychainError) Error() string { return fmt.Sprintf("identity: keychain error: %v", e.Status) }
func (e *KeychainError) Unwrap() error { return e.Status }

// Identity is the opaque pair of (RSA-2048 private key, DER-encoded
// X.509 certificate) described in spec.md §3.
type Identity struct {
	PrivateKey     *rsa.PrivateKey
	CertificateDER []byte
}

// Store is the credential backend contract: load, save, delete,
// against a keyed backend (Design Notes §9). internal/store's
// GORM-backed IdentityStore implements it directly.
type Store interface {
	Load(ctx context.Context) (certDER, keyDER []byte, formatVersion int, err error)
	Save(ctx context.Context, certDER, keyDER []byte, formatVersion int) error
	Delete(ctx context.Context) error
}

// Manager is the Identity Store contract of spec.md §4.3.
type Manager struct {
	backend Store
}

// NewManager wraps backend, evaluating the format-version upgrade
// sweep eagerly so every subsequent call sees a conforming store.
func NewManager(ctx context.Context, backend Store) (*Manager, error) {
	m := &Manager{backend: backend}
	if err := m.upgradeIfStale(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// upgradeIfStale deletes the stored identity when its format version
// predates CurrentFormatVersion, so the next GetOrCreateIdentity call
// regenerates a conforming one.
func (m *Manager) upgradeIfStale(ctx context.Context) error {
	_, _, version, err := m.backend.Load(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return &KeychainError{Status: err}
	}
	if version < CurrentFormatVersion {
		slog.Info("stored identity predates current certificate format, regenerating",
			"stored_version", version, "current_version", CurrentFormatVersion)
		if err := m.backend.Delete(ctx); err != nil {
			return &KeychainError{Status: err}
		}
	}
	return nil
}

// GetOrCreateIdentity returns the stored identity, generating one on
// first call: an RSA-2048 key pair and a self-signed certificate built
// per spec.md §4.2.
func (m *Manager) GetOrCreateIdentity(ctx context.Context) (*Identity, error) {
	certDER, keyDER, _, err := m.backend.Load(ctx)
	if err == nil {
		key, parseErr := x509.ParsePKCS1PrivateKey(keyDER)
		if parseErr != nil {
			return nil, &KeychainError{Status: fmt.Errorf("parsing stored private key: %w", parseErr)}
		}
		return &Identity{PrivateKey: key, CertificateDER: certDER}, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, &KeychainError{Status: err}
	}

	slog.Info("no identity on file, generating a new RSA-2048 identity")
	id, genErr := generate()
	if genErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoIdentity, genErr)
	}
	keyDER = x509.MarshalPKCS1PrivateKey(id.PrivateKey)
	if saveErr := m.backend.Save(ctx, id.CertificateDER, keyDER, CurrentFormatVersion); saveErr != nil {
		return nil, &KeychainError{Status: saveErr}
	}
	return id, nil
}

// generate builds a fresh RSA-2048 identity and its self-signed
// certificate.
func generate() (*Identity, error) {
	key, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA-2048 key: %w", err)
	}
	certDER, err := certbuilder.BuildSelfSigned(key)
	if err != nil {
		return nil, fmt.Errorf("building self-signed certificate: %w", err)
	}
	return &Identity{PrivateKey: key, CertificateDER: certDER}, nil
}

// GetClientCertificateDER returns the current identity's certificate,
// for secret computation (spec.md §4.5) and peer transfer. Returns
// (nil, false) if no identity could be materialized.
func (m *Manager) GetClientCertificateDER(ctx context.Context) ([]byte, bool) {
	id, err := m.GetOrCreateIdentity(ctx)
	if err != nil {
		return nil, false
	}
	return id.CertificateDER, true
}

// GetPrivateKeyRaw returns the current identity's private key as a
// PKCS#1 DER export, for peer transfer during an identity import flow.
func (m *Manager) GetPrivateKeyRaw(ctx context.Context) ([]byte, bool) {
	id, err := m.GetOrCreateIdentity(ctx)
	if err != nil {
		return nil, false
	}
	return x509.MarshalPKCS1PrivateKey(id.PrivateKey), true
}

// ImportIdentity reconstructs a key from its PKCS#1 raw bytes,
// validates that it pairs with the supplied certificate, and persists
// both, replacing whatever identity was previously in use.
func (m *Manager) ImportIdentity(ctx context.Context, keyRaw, certDER []byte) error {
	key, err := x509.ParsePKCS1PrivateKey(keyRaw)
	if err != nil {
		return fmt.Errorf("identity: parsing imported private key: %w", err)
	}
	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return fmt.Errorf("identity: parsing imported certificate: %w", err)
	}
	certPub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("identity: imported certificate has a non-RSA public key")
	}
	if certPub.N.Cmp(key.PublicKey.N) != 0 || certPub.E != key.PublicKey.E {
		return fmt.Errorf("identity: imported private key does not match the supplied certificate")
	}

	if err := m.backend.Save(ctx, certDER, keyRaw, CurrentFormatVersion); err != nil {
		return &KeychainError{Status: err}
	}
	return nil
}
