// Package kex implements the ephemeral Diffie-Hellman key-agreement
// groups spec.md names: Curve25519 and NIST P-256. Both satisfy the same
// Group interface so the handshake state machine stays agnostic to which
// one KEXINIT negotiated — mirroring the switch-on-algorithm dispatch
// the teacher's hkexnet.go uses in Dial/Accept/_new, narrowed to the two
// groups spec.md puts in scope.
//
// Copyright (c) 2017-2018 Russell Magee
// Licensed under the terms of the MIT license (see LICENSE.mit in this
// distribution)
//
// golang implementation by Russ Magee (rmagee_at_gmail.com)
package kex

import (
	"hash"
	"io"
)

// Group is an ephemeral key-agreement algorithm: Curve25519 or
// ECDH-NISTP256.
type Group interface {
	// Name is the KEXINIT algorithm name this group negotiates under.
	Name() string
	// Generate produces a fresh ephemeral keypair, reading randomness
	// from rand. pub is the wire-ready public value (raw point octets,
	// no mpint wrap per spec.md §4.6 S2).
	Generate(rand io.Reader) (priv, pub []byte, err error)
	// Agree computes the shared secret from this side's private scalar
	// and the peer's public value.
	Agree(priv, peerPub []byte) (secret []byte, err error)
	// Hash returns a fresh hash.Hash for this group's transcript hash
	// function (RFC 4253 §8's rule: the KEX algorithm determines it).
	Hash() hash.Hash
}

// ByName returns the Group for a negotiated KEXINIT algorithm name, or
// nil if it isn't one spec.md puts in scope.
func ByName(name string) Group {
	switch name {
	case "curve25519-sha256@libssh.org":
		return Curve25519{}
	case "ecdh-sha2-nistp256":
		return P256{}
	default:
		return nil
	}
}
