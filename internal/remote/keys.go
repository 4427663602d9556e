// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package remote

// Android keycodes, fixed by the protocol (spec.md §4.6).
const (
	KeyUp      = 19
	KeyDown    = 20
	KeyLeft    = 21
	KeyRight   = 22
	KeyCenter  = 23
	KeyBack    = 4
	KeyHome    = 3
	KeyPower   = 26
	KeyVolUp   = 24
	KeyVolDown = 25
	KeyMute    = 164
	KeyChUp    = 166
	KeyChDown  = 167
)
