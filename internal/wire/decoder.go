// SPDX-FileCopyrightText: (C) 2024 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package wire

import "fmt"

// Decoder walks the fields of a single protobuf-shaped message.
type Decoder struct {
	buf []byte
}

// NewDecoder returns a Decoder over msg. msg is not copied; callers
// must not mutate it while decoding.
func NewDecoder(msg []byte) *Decoder {
	return &Decoder{buf: msg}
}

// Len reports how many bytes remain unread.
func (d *Decoder) Len() int {
	return len(d.buf)
}

// ReadTag reads the next field's tag. ok is false once the buffer is
// exhausted.
func (d *Decoder) ReadTag() (field int, wt WireType, ok bool) {
	if len(d.buf) == 0 {
		return 0, 0, false
	}
	t, n, valid := ReadVarint(d.buf)
	if !valid {
		return 0, 0, false
	}
	d.buf = d.buf[n:]
	f, w := untag(t)
	return f, w, true
}

// ReadVarint reads a varint-typed field payload.
func (d *Decoder) ReadVarint() (uint64, error) {
	v, n, ok := ReadVarint(d.buf)
	if !ok {
		return 0, fmt.Errorf("wire: truncated varint")
	}
	d.buf = d.buf[n:]
	return v, nil
}

// ReadBytes reads a length-delimited field payload.
func (d *Decoder) ReadBytes() ([]byte, error) {
	length, n, ok := ReadVarint(d.buf)
	if !ok {
		return nil, fmt.Errorf("wire: truncated length-delimited header")
	}
	rest := d.buf[n:]
	if uint64(len(rest)) < length {
		return nil, fmt.Errorf("wire: length-delimited payload truncated: want %d, have %d", length, len(rest))
	}
	out := rest[:length]
	d.buf = rest[length:]
	return out, nil
}

// ReadString reads a length-delimited field payload as a string.
func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Skip consumes exactly one field payload of the given wire type
// without interpreting it. Any wire type other than the four defined
// here is a no-op that reports false, signaling the caller to stop
// parsing the current message (the type is one we don't understand
// and cannot safely skip past).
func (d *Decoder) Skip(wt WireType) bool {
	switch wt {
	case WireVarint:
		_, n, ok := ReadVarint(d.buf)
		if !ok {
			return false
		}
		d.buf = d.buf[n:]
		return true
	case WireFixed64:
		if len(d.buf) < 8 {
			return false
		}
		d.buf = d.buf[8:]
		return true
	case WireBytes:
		length, n, ok := ReadVarint(d.buf)
		if !ok || uint64(len(d.buf)-n) < length {
			return false
		}
		d.buf = d.buf[n+int(length):]
		return true
	case WireFixed32:
		if len(d.buf) < 4 {
			return false
		}
		d.buf = d.buf[4:]
		return true
	default:
		return false
	}
}

// ExtractMessage attempts to pull one length-prefixed frame off the
// front of buf. It returns the message payload, the number of bytes
// consumed from buf (header + payload), and ok=true on success. On a
// partial frame it returns ok=false and leaves buf semantically
// untouched (callers should wait for more bytes and retry).
func ExtractMessage(buf []byte) (msg []byte, consumed int, ok bool) {
	if len(buf) == 0 {
		return nil, 0, false
	}
	length, n, valid := ReadVarint(buf)
	if !valid {
		return nil, 0, false
	}
	rest := buf[n:]
	if uint64(len(rest)) < length {
		return nil, 0, false
	}
	return rest[:length], n + int(length), true
}
