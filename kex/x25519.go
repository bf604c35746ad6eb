package kex

import (
	"crypto/sha256"
	"hash"
	"io"

	"golang.org/x/crypto/curve25519"
)

// Curve25519 implements Group for curve25519-sha256@libssh.org, the
// group spec.md §4.6 names first. This is the one teacher dependency
// (golang.org/x/crypto) squarely inside spec.md's scope; see
// SPEC_FULL.md §3.
type Curve25519 struct{}

func (Curve25519) Name() string { return "curve25519-sha256@libssh.org" }

func (Curve25519) Generate(rand io.Reader) (priv, pub []byte, err error) {
	priv = make([]byte, curve25519.ScalarSize)
	if _, err = io.ReadFull(rand, priv); err != nil {
		return nil, nil, err
	}
	pub, err = curve25519.X25519(priv, curve25519.Basepoint)
	if err != nil {
		return nil, nil, err
	}
	return priv, pub, nil
}

func (Curve25519) Agree(priv, peerPub []byte) ([]byte, error) {
	return curve25519.X25519(priv, peerPub)
}

func (Curve25519) Hash() hash.Hash { return sha256.New() }
