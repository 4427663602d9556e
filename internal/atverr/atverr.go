// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

// Package atverr is the shared error taxonomy of spec.md §7, used by
// the pairing engine, remote session, and controller façade so
// callers can errors.Is against one stable sentinel set regardless of
// which package a failure originated in.
package atverr

import (
	"errors"
	"fmt"
)

// Sentinel errors, per spec.md §7.
var (
	ErrNoIdentity            = errors.New("no identity available from the credential store")
	ErrPairingRejected       = errors.New("pairing rejected by the TV")
	ErrInvalidResponse       = errors.New("invalid or unparseable response")
	ErrSecretMismatch        = errors.New("pairing secret check byte mismatch")
	ErrServerCertNotAvailable = errors.New("server certificate was not captured during the TLS handshake")
	ErrTimeout               = errors.New("timed out waiting for a response")
	ErrNotConnected          = errors.New("not connected")
)

// ConnectionFailed wraps a transport/TLS failure, including
// cancellation, with a short human-readable reason (spec.md §7).
type ConnectionFailed struct {
	Reason string
	Cause  error
}

func NewConnectionFailed(reason string, cause error) *ConnectionFailed {
	return &ConnectionFailed{Reason: reason, Cause: cause}
}

func (e *ConnectionFailed) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Reason)
}

func (e *ConnectionFailed) Unwrap() error { return e.Cause }

// Cancelled is the Reason used when a cancellation interrupts an
// in-progress pairing or session, per spec.md §5.
const Cancelled = "Cancelled"

// IsCancelled reports whether err is a ConnectionFailed{Reason:
// Cancelled}.
func IsCancelled(err error) bool {
	var cf *ConnectionFailed
	if errors.As(err, &cf) {
		return cf.Reason == Cancelled
	}
	return false
}
