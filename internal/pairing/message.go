// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package pairing

import (
	"fmt"

	"github.com/atvremote/atvremote-go/internal/atverr"
	"github.com/atvremote/atvremote-go/internal/wire"
)

// protocolVersion and statusOK are the envelope constants fixed by
// spec.md §4.5: the newer PairingRequest layout (protocol_version=2,
// status=200, payload), per Design Notes' second open question.
const (
	protocolVersion = 2
	statusOK        = 200
)

// Envelope payload field numbers (spec.md §4.5).
const (
	fieldProtocolVersion      = 1
	fieldStatus               = 2
	fieldPairingRequest       = 10
	fieldPairingOption        = 20
	fieldPairingConfiguration = 30
	fieldPairingSecret        = 40
)

// Encoding sub-message constants: the client only ever offers and
// expects HEXADECIMAL/6, per Design Notes' first open question.
const (
	encodingHexadecimal = 3
	symbolLength        = 6
	preferredRole       = 1
)

const serviceName = "atvremote"

// envelope is the decoded shape of a received PairingMessage.
type envelope struct {
	status              uint64
	configPresent       bool
	configEncodingKnown bool
	configEncodingType  uint64
}

func envelopeEncoder() *wire.Encoder {
	return wire.NewEncoder().
		AddVarint(fieldProtocolVersion, protocolVersion).
		AddVarint(fieldStatus, statusOK)
}

func encodingSubmessage() *wire.Encoder {
	return wire.NewEncoder().
		AddVarint(1, encodingHexadecimal).
		AddVarint(2, symbolLength)
}

// encodePairingRequest builds the PairingRequest envelope (field 10).
func encodePairingRequest(clientName string) []byte {
	payload := wire.NewEncoder().
		AddString(1, serviceName).
		AddString(2, clientName)
	return envelopeEncoder().AddMessage(fieldPairingRequest, payload).Bytes()
}

// encodePairingOption builds the PairingOption envelope (field 20).
func encodePairingOption() []byte {
	payload := wire.NewEncoder().
		AddMessage(1, encodingSubmessage()).
		AddMessage(2, encodingSubmessage()).
		AddVarint(3, preferredRole)
	return envelopeEncoder().AddMessage(fieldPairingOption, payload).Bytes()
}

// encodePairingSecret builds the PairingSecret envelope (field 40).
func encodePairingSecret(secret []byte) []byte {
	payload := wire.NewEncoder().AddBytes(1, secret)
	return envelopeEncoder().AddMessage(fieldPairingSecret, payload).Bytes()
}

// decodeEnvelope parses a received PairingMessage. Any field the
// client doesn't recognize is skipped rather than rejected, so a
// server that adds fields the client doesn't know about still works.
func decodeEnvelope(msg []byte) (envelope, error) {
	d := wire.NewDecoder(msg)
	var env envelope
	statusSeen := false

	for d.Len() > 0 {
		field, wt, ok := d.ReadTag()
		if !ok {
			return envelope{}, fmt.Errorf("pairing: %w: truncated tag", atverr.ErrInvalidResponse)
		}
		switch {
		case field == fieldStatus && wt == wire.WireVarint:
			v, err := d.ReadVarint()
			if err != nil {
				return envelope{}, fmt.Errorf("pairing: %w: reading status: %v", atverr.ErrInvalidResponse, err)
			}
			env.status = v
			statusSeen = true
		case field == fieldProtocolVersion && wt == wire.WireVarint:
			if _, err := d.ReadVarint(); err != nil {
				return envelope{}, fmt.Errorf("pairing: %w: reading protocol_version: %v", atverr.ErrInvalidResponse, err)
			}
		case field == fieldPairingConfiguration && wt == wire.WireBytes:
			b, err := d.ReadBytes()
			if err != nil {
				return envelope{}, fmt.Errorf("pairing: %w: reading PairingConfiguration: %v", atverr.ErrInvalidResponse, err)
			}
			env.configPresent = true
			if t, ok := peekEncodingType(b); ok {
				env.configEncodingKnown = true
				env.configEncodingType = t
			}
		default:
			if !d.Skip(wt) {
				return envelope{}, fmt.Errorf("pairing: %w: unreadable field %d", atverr.ErrInvalidResponse, field)
			}
		}
	}

	if !statusSeen {
		return envelope{}, fmt.Errorf("pairing: %w: missing status field", atverr.ErrInvalidResponse)
	}
	return env, nil
}

// peekEncodingType looks for an output_encodings (field 2) Encoding
// sub-message inside an opaque PairingConfiguration payload and
// returns its type, if present. PairingConfiguration is otherwise
// opaque to the client (spec.md §4.5); this only exists to support the
// Design Notes' open question about a server selecting a different
// encoding.
func peekEncodingType(payload []byte) (uint64, bool) {
	d := wire.NewDecoder(payload)
	for d.Len() > 0 {
		field, wt, ok := d.ReadTag()
		if !ok {
			return 0, false
		}
		if field != 2 || wt != wire.WireBytes {
			if !d.Skip(wt) {
				return 0, false
			}
			continue
		}
		encBytes, err := d.ReadBytes()
		if err != nil {
			return 0, false
		}
		ed := wire.NewDecoder(encBytes)
		for ed.Len() > 0 {
			ef, ewt, ok := ed.ReadTag()
			if !ok {
				return 0, false
			}
			if ef == 1 && ewt == wire.WireVarint {
				v, err := ed.ReadVarint()
				if err != nil {
					return 0, false
				}
				return v, true
			}
			if !ed.Skip(ewt) {
				return 0, false
			}
		}
		return 0, false
	}
	return 0, false
}
