// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package wire

// Encoder builds a single protobuf-shaped message by appending fields
// in call order. Decoders never assume a particular field order, so
// callers are free to choose whatever order is convenient.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// AddVarint appends a varint-typed field.
func (e *Encoder) AddVarint(field int, v uint64) *Encoder {
	e.buf = AppendVarint(e.buf, tag(field, WireVarint))
	e.buf = AppendVarint(e.buf, v)
	return e
}

// AddBool appends a varint-typed field carrying 0 or 1.
func (e *Encoder) AddBool(field int, v bool) *Encoder {
	if v {
		return e.AddVarint(field, 1)
	}
	return e.AddVarint(field, 0)
}

// AddBytes appends a length-delimited field.
func (e *Encoder) AddBytes(field int, v []byte) *Encoder {
	e.buf = AppendVarint(e.buf, tag(field, WireBytes))
	e.buf = AppendVarint(e.buf, uint64(len(v)))
	e.buf = append(e.buf, v...)
	return e
}

// AddString appends a length-delimited field carrying UTF-8 text.
func (e *Encoder) AddString(field int, v string) *Encoder {
	return e.AddBytes(field, []byte(v))
}

// AddMessage appends the bytes of a nested message as a length-delimited
// field.
func (e *Encoder) AddMessage(field int, sub *Encoder) *Encoder {
	return e.AddBytes(field, sub.Bytes())
}

// Bytes returns the encoded message built so far.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Frame prepends a varint length prefix to an already-encoded message,
// producing the on-wire frame: [varint length][payload].
func Frame(payload []byte) []byte {
	out := AppendVarint(nil, uint64(len(payload)))
	return append(out, payload...)
}
