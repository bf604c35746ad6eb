// Package hostkey parses the RFC 4253 "ssh-rsa" host-key and signature
// blobs and verifies a signature over the exchange hash.
//
// Grounded on the retrieval pack's massiveart-go.crypto/ssh-client.go
// verifyHostKeySignature/ParsePublicKey pattern (parse the tagged host
// key blob, parse the tagged signature blob, check the tags match,
// verify).
//
// Copyright (c) 2017-2018 Russell Magee
// Licensed under the terms of the MIT license (see LICENSE.mit in this
// distribution)
//
// golang implementation by Russ Magee (rmagee_at_gmail.com)
package hostkey

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1" // #nosec G505 -- RFC 4253's "ssh-rsa" signature format mandates SHA-1; no substitute exists for this algorithm name.
	"errors"
	"fmt"

	"blitter.com/go/sshkex/herrors"
	"blitter.com/go/sshkex/wire"
)

// Algo is the only server-host-key / signature algorithm this
// implementation understands; spec.md's "Unknown(name)" round-trip
// handling lives in the handshake package's HostKeyAlgo type, since
// that's where unrecognized names must still negotiate without error —
// here, an unrecognized tag is always fatal, because by the time a blob
// reaches this package the handshake has already committed to
// server-host-key algorithm ssh-rsa being the only one it will attempt
// to verify.
const Algo = "ssh-rsa"

// PublicKey is the decoded body of a K_S "ssh-rsa" host-key blob.
type PublicKey struct {
	RSA *rsa.PublicKey
}

// ParsePublicKey decodes an "ssh-rsa" host-key blob: string "ssh-rsa",
// mpint e, mpint n.
func ParsePublicKey(blob []byte) (*PublicKey, error) {
	d := wire.NewDecoder(blob)
	tag, err := d.Text()
	if err != nil {
		return nil, err
	}
	if tag != Algo {
		return nil, herrors.New(herrors.UnknownCertType,
			fmt.Sprintf("unsupported host-key algorithm %q", tag))
	}
	e, err := d.MPInt()
	if err != nil {
		return nil, err
	}
	n, err := d.MPInt()
	if err != nil {
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, errors.New("hostkey: trailing bytes after host-key blob")
	}
	return &PublicKey{RSA: &rsa.PublicKey{E: int(e.Int64()), N: n}}, nil
}

// Signature is the decoded body of a KEXDH_REPLY signature blob.
type Signature struct {
	Algo  string
	Blob  []byte
}

// ParseSignature decodes a signature blob: string algo-name, string
// sig-bytes.
func ParseSignature(blob []byte) (*Signature, error) {
	d := wire.NewDecoder(blob)
	algo, err := d.Text()
	if err != nil {
		return nil, err
	}
	sig, err := d.String()
	if err != nil {
		return nil, err
	}
	if d.Remaining() != 0 {
		return nil, errors.New("hostkey: trailing bytes after signature blob")
	}
	return &Signature{Algo: algo, Blob: sig}, nil
}

// Verify checks sig.Blob against exchangeHash using pub, per the
// ssh-rsa signature format: RSASSA-PKCS1-v1_5 over SHA-1. sig.Algo must
// be "ssh-rsa"; any other tag is rejected without attempting
// verification, since no other signature algorithm is supported.
func Verify(pub *PublicKey, exchangeHash []byte, sig *Signature) error {
	if sig.Algo != Algo {
		return fmt.Errorf("hostkey: unexpected signature algorithm %q (want %q)", sig.Algo, Algo)
	}
	digest := sha1.Sum(exchangeHash)
	return rsa.VerifyPKCS1v15(pub.RSA, crypto.SHA1, digest[:], sig.Blob)
}
