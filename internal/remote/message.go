// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package remote

import "github.com/atvremote/atvremote-go/internal/wire"

// Envelope payload field numbers (spec.md §4.6).
const (
	fieldRemoteKeyInject = 2
	fieldRemoteConfigure = 7
	fieldRemoteSetActive = 8
	fieldPing            = 10
	fieldPong            = 11
	fieldRemoteStart     = 40
)

// configureCode and activeCode are the magic constants the protocol
// fixes for RemoteConfigure.code1 and RemoteSetActive.active.
const (
	configureCode = 622
	activeCode    = 622
	deviceVersion = "1.0.0"
	unknownField  = 1
)

const (
	directionShortPress = 3
)

// DeviceInfo identifies this client to the TV during RemoteConfigure.
type DeviceInfo struct {
	Model     string
	Vendor    string
	PackageID string
}

func encodeRemoteConfigure(info DeviceInfo) []byte {
	deviceInfo := wire.NewEncoder().
		AddString(1, info.Model).
		AddString(2, info.Vendor).
		AddVarint(3, unknownField).
		AddString(4, deviceVersion).
		AddString(5, info.PackageID)
	configure := wire.NewEncoder().
		AddVarint(1, configureCode).
		AddMessage(2, deviceInfo)
	return wire.NewEncoder().AddMessage(fieldRemoteConfigure, configure).Bytes()
}

func encodeRemoteSetActive() []byte {
	active := wire.NewEncoder().AddVarint(1, activeCode)
	return wire.NewEncoder().AddMessage(fieldRemoteSetActive, active).Bytes()
}

func encodeRemoteKeyInject(keyCode int) []byte {
	inject := wire.NewEncoder().
		AddVarint(1, uint64(keyCode)).
		AddVarint(2, directionShortPress)
	return wire.NewEncoder().AddMessage(fieldRemoteKeyInject, inject).Bytes()
}

func encodePong(val uint64) []byte {
	pong := wire.NewEncoder().AddVarint(1, val)
	return wire.NewEncoder().AddMessage(fieldPong, pong).Bytes()
}

// readPingValue extracts field 1 from a Ping payload.
func readPingValue(payload []byte) (uint64, error) {
	d := wire.NewDecoder(payload)
	for d.Len() > 0 {
		field, wt, ok := d.ReadTag()
		if !ok {
			break
		}
		if field == 1 && wt == wire.WireVarint {
			return d.ReadVarint()
		}
		if !d.Skip(wt) {
			break
		}
	}
	return 0, nil
}
