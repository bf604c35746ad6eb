// Package wire implements the SSH binary data-type taxonomy (RFC 4251
// §5): fixed-width integers, booleans, length-prefixed byte/string
// values, name-lists, mpints, and the tagged-union encoding used for
// host-key blobs and signatures.
//
// Grounded on the teacher's ad-hoc binary.Write/Read framing in
// hkexnet.go, generalized into the declarative encode/decode helpers the
// retrieval pack's massiveart-go.crypto/ssh-common.go shows
// (marshal/unmarshal over a small set of wire primitives), adapted to
// Go's explicit-error idiom rather than that package's panics.
//
// Copyright (c) 2017-2018 Russell Magee
// Licensed under the terms of the MIT license (see LICENSE.mit in this
// distribution)
//
// golang implementation by Russ Magee (rmagee_at_gmail.com)
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"
)

// ErrShort is returned whenever a decode runs out of input bytes.
var ErrShort = errors.New("wire: unexpected EOF decoding value")

// Decoder reads SSH wire values from a byte slice, advancing an internal
// cursor. String and Raw return copies; Rest returns a view of the
// backing array, which callers needing to retain it should copy.
type Decoder struct {
	b   []byte
	pos int
}

// NewDecoder returns a Decoder over b.
func NewDecoder(b []byte) *Decoder { return &Decoder{b: b} }

// Remaining reports how many bytes are left to decode.
func (d *Decoder) Remaining() int { return len(d.b) - d.pos }

// Rest returns every remaining undecoded byte, without advancing.
func (d *Decoder) Rest() []byte { return d.b[d.pos:] }

// Byte decodes a single octet.
func (d *Decoder) Byte() (byte, error) {
	if d.Remaining() < 1 {
		return 0, ErrShort
	}
	v := d.b[d.pos]
	d.pos++
	return v, nil
}

// Bool decodes a boolean: only 0x00 and 0x01 are valid on the wire.
func (d *Decoder) Bool() (bool, error) {
	v, err := d.Byte()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, fmt.Errorf("wire: non-boolean byte 0x%02x", v)
	}
}

// Uint32 decodes a big-endian uint32.
func (d *Decoder) Uint32() (uint32, error) {
	if d.Remaining() < 4 {
		return 0, ErrShort
	}
	v := binary.BigEndian.Uint32(d.b[d.pos:])
	d.pos += 4
	return v, nil
}

// String decodes a length-prefixed byte string, returning a copy.
func (d *Decoder) String() ([]byte, error) {
	n, err := d.Uint32()
	if err != nil {
		return nil, err
	}
	if uint64(d.Remaining()) < uint64(n) {
		return nil, ErrShort
	}
	out := make([]byte, n)
	copy(out, d.b[d.pos:d.pos+int(n)])
	d.pos += int(n)
	return out, nil
}

// Text decodes a length-prefixed string and validates it as UTF-8.
func (d *Decoder) Text() (string, error) {
	b, err := d.String()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("wire: string field is not valid UTF-8")
	}
	return string(b), nil
}

// NameList decodes a string whose payload is comma-separated printable
// US-ASCII names; an empty payload decodes to an empty (non-nil) slice.
func (d *Decoder) NameList() ([]string, error) {
	s, err := d.Text()
	if err != nil {
		return nil, err
	}
	if s == "" {
		return []string{}, nil
	}
	return strings.Split(s, ","), nil
}

// MPInt decodes a multi-precision integer: a length-prefixed string,
// two's-complement big-endian, stripped of a single leading zero byte
// used only to keep the value's sign bit clear.
func (d *Decoder) MPInt() (*big.Int, error) {
	b, err := d.String()
	if err != nil {
		return nil, err
	}
	if len(b) > 0 && b[0] == 0x00 {
		b = b[1:]
	}
	return new(big.Int).SetBytes(b), nil
}

// Raw decodes n bytes with no length prefix (used for fixed-size fields
// like the KEXINIT cookie).
func (d *Decoder) Raw(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, ErrShort
	}
	out := make([]byte, n)
	copy(out, d.b[d.pos:d.pos+n])
	d.pos += n
	return out, nil
}

// Nested decodes a length-prefixed byte string intended to be decoded
// again as its own Decoder (the "interpret this field as a nested blob"
// hook from the spec's codec design).
func (d *Decoder) Nested() (*Decoder, error) {
	b, err := d.String()
	if err != nil {
		return nil, err
	}
	return NewDecoder(b), nil
}

// Encoder builds SSH wire values into a growing byte buffer.
type Encoder struct {
	b []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder { return &Encoder{} }

// Bytes returns the accumulated encoding.
func (e *Encoder) Bytes() []byte { return e.b }

// Byte appends a single octet.
func (e *Encoder) Byte(v byte) *Encoder {
	e.b = append(e.b, v)
	return e
}

// Bool appends a boolean as 0x00/0x01.
func (e *Encoder) Bool(v bool) *Encoder {
	if v {
		return e.Byte(1)
	}
	return e.Byte(0)
}

// Uint32 appends a big-endian uint32.
func (e *Encoder) Uint32(v uint32) *Encoder {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	e.b = append(e.b, tmp[:]...)
	return e
}

// Raw appends p with no length prefix.
func (e *Encoder) Raw(p []byte) *Encoder {
	e.b = append(e.b, p...)
	return e
}

// String appends a length-prefixed byte string.
func (e *Encoder) String(p []byte) *Encoder {
	e.Uint32(uint32(len(p)))
	e.b = append(e.b, p...)
	return e
}

// Text appends a length-prefixed string.
func (e *Encoder) Text(s string) *Encoder { return e.String([]byte(s)) }

// NameList appends a comma-joined name list as a length-prefixed string.
func (e *Encoder) NameList(names []string) *Encoder {
	return e.Text(strings.Join(names, ","))
}

// MPInt appends v as a two's-complement big-endian string, prefixing a
// zero byte when the high bit of the most-significant byte would
// otherwise be set, so the value reads as non-negative. Zero encodes as
// the empty string.
func (e *Encoder) MPInt(v *big.Int) *Encoder {
	if v.Sign() == 0 {
		return e.String(nil)
	}
	b := v.Bytes()
	if b[0]&0x80 != 0 {
		padded := make([]byte, len(b)+1)
		copy(padded[1:], b)
		b = padded
	}
	return e.String(b)
}

// Nested encodes the bytes produced by fn as a length-prefixed byte
// string (the "nested blob" hook).
func (e *Encoder) Nested(fn func(*Encoder)) *Encoder {
	inner := NewEncoder()
	fn(inner)
	return e.String(inner.Bytes())
}
