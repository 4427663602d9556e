// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package wire

// RecvBuffer accumulates bytes read off a TLS connection and yields
// complete frames as they become available. It is not safe for
// concurrent use; each PairingSession/RemoteSession owns exactly one.
type RecvBuffer struct {
	data []byte
}

// Append adds newly-read bytes to the buffer.
func (b *RecvBuffer) Append(p []byte) {
	b.data = append(b.data, p...)
}

// Extract removes and returns the next complete frame's payload, if
// any. It returns ok=false when the buffer holds only a partial frame
// (or is empty); the buffer is left untouched in that case so a
// subsequent read can complete it.
func (b *RecvBuffer) Extract() (msg []byte, ok bool) {
	msg, n, ok := ExtractMessage(b.data)
	if !ok {
		return nil, false
	}
	// Copy out: b.data will be re-sliced and later appends must not
	// corrupt a message the caller is still holding.
	out := make([]byte, len(msg))
	copy(out, msg)
	b.data = b.data[n:]
	return out, true
}

// Len reports the number of unconsumed bytes currently buffered.
func (b *RecvBuffer) Len() int {
	return len(b.data)
}
