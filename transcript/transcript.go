// Package transcript computes the RFC 4253 §8 exchange hash: an
// incremental hash over V_C, V_S, I_C, I_S, K_S, e, f, K, each fed in as
// an SSH string (a big-endian uint32 length followed by the bytes).
//
// Grounded on the retrieval pack's massiveart-go.crypto/ssh-client.go
// kexECDH, which builds exactly this sequence via a writeString helper
// before hashing the shared secret as an mpint.
//
// Copyright (c) 2017-2018 Russell Magee
// Licensed under the terms of the MIT license (see LICENSE.mit in this
// distribution)
//
// golang implementation by Russ Magee (rmagee_at_gmail.com)
package transcript

import (
	"encoding/binary"
	"hash"
	"math/big"
)

// Hasher accumulates the transcript hash. It's a thin wrapper around a
// hash.Hash so that feeding a value "as an SSH string" (length-prefix
// then bytes) can't accidentally be done inconsistently between the two
// stages of the handshake (KEXINIT init vs. KEXDH update).
type Hasher struct {
	h hash.Hash
}

// New starts a new transcript hash using newHash (typically
// sha256.New), per the negotiated KEX algorithm's hash function.
func New(newHash func() hash.Hash) *Hasher {
	return &Hasher{h: newHash()}
}

// WriteString feeds b into the hash as an SSH string: a big-endian
// uint32 length followed by b's bytes.
func (t *Hasher) WriteString(b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	t.h.Write(lenBuf[:])
	t.h.Write(b)
}

// WriteMPInt feeds v into the hash as an mpint-encoded SSH string: the
// same two's-complement-with-sign-byte encoding wire.Encoder.MPInt
// produces, duplicated here (rather than imported) so this package has
// no dependency beyond the standard library — the exchange hash is pure
// hashing, not general wire encoding.
func (t *Hasher) WriteMPInt(v *big.Int) {
	if v.Sign() == 0 {
		t.WriteString(nil)
		return
	}
	b := v.Bytes()
	if b[0]&0x80 != 0 {
		padded := make([]byte, len(b)+1)
		copy(padded[1:], b)
		b = padded
	}
	t.WriteString(b)
}

// Sum finalizes and returns the exchange hash H.
func (t *Hasher) Sum() []byte {
	return t.h.Sum(nil)
}
