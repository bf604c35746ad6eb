// Package handshake implements the client-side SSH-2 pre-encryption
// handshake state machine: version exchange, KEXINIT negotiation,
// Diffie-Hellman key exchange, host-key signature verification, and
// NEWKEYS, driven non-blocking over a packet.Reader/packet.Writer pair.
//
// Grounded on the teacher's hkexnet.go connection setup (Dial performs
// exactly this kind of sequential handshake over a raw net.Conn) and on
// the cooperative single-poll driver original_source/ describes for its
// async handshake state machine, adapted to Go's explicit-error,
// no-goroutine idiom: one Poll call advances as far as buffered data
// allows and returns (nil, nil) for not-ready rather than a Future.
//
// Copyright (c) 2017-2018 Russell Magee
// Licensed under the terms of the MIT license (see LICENSE.mit in this
// distribution)
//
// golang implementation by Russ Magee (rmagee_at_gmail.com)
package handshake

import (
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"

	"blitter.com/go/sshkex/asyncio"
	"blitter.com/go/sshkex/herrors"
	"blitter.com/go/sshkex/hostkey"
	"blitter.com/go/sshkex/kex"
	"blitter.com/go/sshkex/logger"
	"blitter.com/go/sshkex/packet"
	"blitter.com/go/sshkex/transcript"
)

// Handshake drives one client-side SSH-2 pre-encryption handshake. It
// owns the reader, writer, and random source for its entire lifetime,
// matching the single-owner resource policy spec.md §5 describes for
// the driver.
type Handshake struct {
	cfg  Config
	rand io.Reader

	ar *asyncio.Reader
	aw *asyncio.Writer
	pr *packet.Reader
	pw *packet.Writer

	phase phase

	ownLine     string // our own identification line, sans CRLF (V_C)
	peerLine    string // V_S, once read
	versionSent bool

	cookie [16]byte
	ic     []byte // I_C: our marshaled KEXINIT payload
	isPkt  []byte // I_S: the peer's full KEXINIT payload

	negotiated NegotiatedAlgorithm
	group      kex.Group

	ephPriv, ephPub []byte
	kexDHInitSent   bool

	hostKeyBlob []byte
	fValue      []byte
	sigBlob     []byte

	sharedSecret []byte
	exchangeHash []byte

	newKeysWritten bool
}

// New constructs a Handshake over src/sink (the raw, possibly
// non-blocking, byte source and sink for the connection), using rand as
// the sole source of randomness for the KEXINIT cookie, packet padding,
// and ephemeral key generation. cfg supplies this client's
// identification string and algorithm preferences.
func New(src asyncio.Source, sink asyncio.Sink, rand io.Reader, cfg Config) *Handshake {
	ar := asyncio.NewReader(src)
	aw := asyncio.NewWriter(sink)
	h := &Handshake{
		cfg:   cfg,
		rand:  rand,
		ar:    ar,
		aw:    aw,
		pr:    packet.NewReader(ar),
		pw:    packet.NewWriter(aw, 0, rand),
		phase: phaseVersionWrite,
	}
	h.ownLine = versionPrefix + cfg.ClientSoftwareVersion
	if cfg.Comments != "" {
		h.ownLine += " " + cfg.Comments
	}
	return h
}

// Close aborts the handshake, per spec.md §5's cancellation policy: any
// bytes still buffered in the writer are given one best-effort flush
// attempt and may be lost. Callers that give up on a Handshake (a
// deadline expires, the embedding event loop is tearing down the
// connection) should call Close before discarding it rather than
// dropping the writer's buffered bytes silently.
func (h *Handshake) Close() {
	h.aw.Close()
}

// Poll advances the handshake as far as currently buffered/available
// I/O permits. It returns (ctx, nil) once the handshake completes
// successfully, (nil, nil) if it is blocked waiting on more I/O (the
// caller should poll again once the underlying source/sink can make
// progress), or (nil, err) on a terminal failure — once Poll returns a
// non-nil error, the Handshake must not be polled again.
func (h *Handshake) Poll() (*SecureContext, error) {
	for {
		switch h.phase {
		case phaseVersionWrite:
			if err := h.pollVersionWrite(); err != nil {
				return nil, err
			}
			if h.phase == phaseVersionWrite {
				return nil, nil
			}

		case phaseVersionRead:
			if err := h.pollVersionRead(); err != nil {
				return nil, err
			}
			if h.phase == phaseVersionRead {
				return nil, nil
			}

		case phaseKexInitWrite:
			if err := h.pollKexInitWrite(); err != nil {
				return nil, err
			}
			if h.phase == phaseKexInitWrite {
				return nil, nil
			}

		case phaseKexInitRead:
			if err := h.pollKexInitRead(); err != nil {
				return nil, err
			}
			if h.phase == phaseKexInitRead {
				return nil, nil
			}

		case phaseKexInitNegotiate:
			if err := h.negotiate(); err != nil {
				return nil, err
			}
			h.phase = phaseKexDHWrite

		case phaseKexDHWrite:
			if err := h.pollKexDHWrite(); err != nil {
				return nil, err
			}
			if h.phase == phaseKexDHWrite {
				return nil, nil
			}

		case phaseKexDHRead:
			if err := h.pollKexDHRead(); err != nil {
				return nil, err
			}
			if h.phase == phaseKexDHRead {
				return nil, nil
			}

		case phaseKexDHVerify:
			if err := h.verify(); err != nil {
				return nil, err
			}
			h.phase = phaseNewKeysWrite

		case phaseNewKeysWrite:
			if err := h.pollNewKeysWrite(); err != nil {
				return nil, err
			}
			if h.phase == phaseNewKeysWrite {
				return nil, nil
			}

		case phaseNewKeysFlush:
			ready, err := h.pw.Flush()
			if err != nil {
				return nil, herrors.Wrap(herrors.Io, "flushing NEWKEYS", err)
			}
			if !ready {
				return nil, nil
			}
			h.phase = phaseDone

		case phaseDone:
			return &SecureContext{
				Algorithms:   h.negotiated,
				SessionID:    h.exchangeHash,
				Group:        h.group,
				SharedSecret: h.sharedSecret,
			}, nil
		}
	}
}

func blocked(err error) bool { return errors.Is(err, asyncio.ErrWouldBlock) }

// pollVersionWrite sends V_C as a single line, per RFC 4253 §4.2.
func (h *Handshake) pollVersionWrite() error {
	if !h.versionSent {
		line := h.ownLine + "\r\n"
		if len(line) > maxVersionLineLength {
			return herrors.New(herrors.InvalidVersionExchange, "local identification line exceeds 255 bytes")
		}
		if err := h.aw.WriteExact([]byte(line)); err != nil {
			if blocked(err) {
				return nil
			}
			return herrors.Wrap(herrors.Io, "writing identification line", err)
		}
		h.versionSent = true
	}
	ready, err := h.aw.Flush()
	if err != nil {
		if blocked(err) {
			return nil
		}
		return herrors.Wrap(herrors.Io, "flushing identification line", err)
	}
	if !ready {
		return nil
	}
	logger.LogDebug(fmt.Sprintf("sent identification line %q", h.ownLine))
	h.phase = phaseVersionRead
	return nil
}

// pollVersionRead reads V_S, per RFC 4253 §4.2: must start with
// "SSH-2.0-" and end with CRLF, 255 bytes max including the CRLF.
func (h *Handshake) pollVersionRead() error {
	raw, err := h.ar.ReadUntil('\n', maxVersionLineLength-1)
	if err != nil {
		if blocked(err) {
			return nil
		}
		if errors.Is(err, asyncio.ErrLineTooLong) {
			return herrors.New(herrors.InvalidVersionExchange, "peer identification line exceeds 255 bytes")
		}
		return herrors.Wrap(herrors.Io, "reading identification line", err)
	}
	s := string(raw)
	if !strings.HasSuffix(s, "\r") {
		return herrors.New(herrors.InvalidVersionExchange,
			fmt.Sprintf("peer line %q is not terminated with CRLF", s))
	}
	line := strings.TrimSuffix(s, "\r")
	if !strings.HasPrefix(line, versionPrefix) {
		return herrors.New(herrors.InvalidVersionExchange,
			fmt.Sprintf("peer line %q does not start with %q", line, versionPrefix))
	}
	h.peerLine = line
	logger.LogDebug(fmt.Sprintf("received identification line %q", line))
	h.phase = phaseKexInitWrite
	return nil
}

// pollKexInitWrite builds and sends I_C.
func (h *Handshake) pollKexInitWrite() error {
	if h.ic == nil {
		if _, err := io.ReadFull(h.rand, h.cookie[:]); err != nil {
			return herrors.Wrap(herrors.Unspecified, "generating KEXINIT cookie", err)
		}
		msg := &AlgorithmNegotiation{
			Cookie:                  h.cookie,
			KexAlgorithms:           h.cfg.Prefs.Kex,
			ServerHostKeyAlgorithms: h.cfg.Prefs.ServerHostKey,
			EncryptionClientServer:  h.cfg.Prefs.EncryptionClientServer,
			EncryptionServerClient:  h.cfg.Prefs.EncryptionServerClient,
			MACClientServer:         h.cfg.Prefs.MACClientServer,
			MACServerClient:         h.cfg.Prefs.MACServerClient,
			CompressionClientServer: h.cfg.Prefs.CompressionClientServer,
			CompressionServerClient: h.cfg.Prefs.CompressionServerClient,
			LanguagesClientServer:   h.cfg.Prefs.LanguagesClientServer,
			LanguagesServerClient:   h.cfg.Prefs.LanguagesServerClient,
			FirstKexPacketFollows:   false,
			Reserved:                0,
		}
		h.ic = msg.Marshal()
		if err := h.pw.WritePacket(h.ic); err != nil {
			return herrors.Wrap(herrors.Io, "framing KEXINIT packet", err)
		}
	}
	ready, err := h.pw.Flush()
	if err != nil {
		if blocked(err) {
			return nil
		}
		return herrors.Wrap(herrors.Io, "flushing KEXINIT packet", err)
	}
	if !ready {
		return nil
	}
	h.phase = phaseKexInitRead
	return nil
}

// pollKexInitRead reads I_S.
func (h *Handshake) pollKexInitRead() error {
	payload, err := h.pr.ReadPacket()
	if err != nil {
		if blocked(err) {
			return nil
		}
		var he *herrors.Error
		if errors.As(err, &he) {
			return err
		}
		return herrors.Wrap(herrors.Io, "reading KEXINIT packet", err)
	}
	if len(payload) == 0 || payload[0] != MsgKexInit {
		got := byte(0)
		if len(payload) > 0 {
			got = payload[0]
		}
		return herrors.New(herrors.InvalidAlgorithmNegotiation,
			fmt.Sprintf("expected SSH_MSG_KEXINIT (20), got %d", got))
	}
	h.isPkt = payload
	h.phase = phaseKexInitNegotiate
	return nil
}

// negotiate selects one algorithm per category via firstCommon and sets
// up the transcript hash and ephemeral keypair for the chosen KEX group.
func (h *Handshake) negotiate() error {
	peer, err := ParseAlgorithmNegotiation(h.isPkt)
	if err != nil {
		return herrors.Wrap(herrors.InvalidAlgorithmNegotiation, "parsing peer KEXINIT", err)
	}

	kexName, ok := firstCommon(kexAlgoStrings(h.cfg.Prefs.Kex), kexAlgoStrings(peer.KexAlgorithms))
	if !ok {
		return herrors.New(herrors.InvalidAlgorithmNegotiation, "no common kex algorithm")
	}
	hostKeyName, ok := firstCommon(hostKeyAlgoStrings(h.cfg.Prefs.ServerHostKey), hostKeyAlgoStrings(peer.ServerHostKeyAlgorithms))
	if !ok {
		return herrors.New(herrors.InvalidAlgorithmNegotiation, "no common server host-key algorithm")
	}
	encCS, ok := firstCommon(h.cfg.Prefs.EncryptionClientServer, peer.EncryptionClientServer)
	if !ok {
		return herrors.New(herrors.InvalidAlgorithmNegotiation, "no common client-to-server encryption algorithm")
	}
	encSC, ok := firstCommon(h.cfg.Prefs.EncryptionServerClient, peer.EncryptionServerClient)
	if !ok {
		return herrors.New(herrors.InvalidAlgorithmNegotiation, "no common server-to-client encryption algorithm")
	}
	macCS, ok := firstCommon(h.cfg.Prefs.MACClientServer, peer.MACClientServer)
	if !ok {
		return herrors.New(herrors.InvalidAlgorithmNegotiation, "no common client-to-server MAC algorithm")
	}
	macSC, ok := firstCommon(h.cfg.Prefs.MACServerClient, peer.MACServerClient)
	if !ok {
		return herrors.New(herrors.InvalidAlgorithmNegotiation, "no common server-to-client MAC algorithm")
	}
	compCS, ok := firstCommon(h.cfg.Prefs.CompressionClientServer, peer.CompressionClientServer)
	if !ok {
		return herrors.New(herrors.InvalidAlgorithmNegotiation, "no common client-to-server compression algorithm")
	}
	compSC, ok := firstCommon(h.cfg.Prefs.CompressionServerClient, peer.CompressionServerClient)
	if !ok {
		return herrors.New(herrors.InvalidAlgorithmNegotiation, "no common server-to-client compression algorithm")
	}

	h.negotiated = NegotiatedAlgorithm{
		Kex:                     KexAlgo(kexName),
		ServerHostKey:           HostKeyAlgo(hostKeyName),
		EncryptionClientServer:  encCS,
		EncryptionServerClient:  encSC,
		MACClientServer:         macCS,
		MACServerClient:         macSC,
		CompressionClientServer: compCS,
		CompressionServerClient: compSC,
	}

	group := kex.ByName(kexName)
	if group == nil {
		return herrors.New(herrors.InvalidAlgorithmNegotiation,
			fmt.Sprintf("negotiated kex algorithm %q has no implementation", kexName))
	}
	h.group = group

	priv, pub, err := group.Generate(h.rand)
	if err != nil {
		return herrors.Wrap(herrors.KexFailed, "generating ephemeral keypair", err)
	}
	h.ephPriv, h.ephPub = priv, pub

	logger.LogDebug(fmt.Sprintf("negotiated kex=%s host-key=%s", kexName, hostKeyName))
	return nil
}

// pollKexDHWrite sends SSH_MSG_KEXDH_INIT carrying e.
func (h *Handshake) pollKexDHWrite() error {
	if !h.kexDHInitSent {
		msg := &KexDHInit{E: h.ephPub}
		if err := h.pw.WritePacket(msg.Marshal()); err != nil {
			return herrors.Wrap(herrors.Io, "framing KEXDH_INIT packet", err)
		}
		h.kexDHInitSent = true
	}
	ready, err := h.pw.Flush()
	if err != nil {
		if blocked(err) {
			return nil
		}
		return herrors.Wrap(herrors.Io, "flushing KEXDH_INIT packet", err)
	}
	if !ready {
		return nil
	}
	h.phase = phaseKexDHRead
	return nil
}

// pollKexDHRead reads SSH_MSG_KEXDH_REPLY.
func (h *Handshake) pollKexDHRead() error {
	payload, err := h.pr.ReadPacket()
	if err != nil {
		if blocked(err) {
			return nil
		}
		var he *herrors.Error
		if errors.As(err, &he) {
			return err
		}
		return herrors.Wrap(herrors.Io, "reading KEXDH_REPLY packet", err)
	}
	reply, err := ParseKexDHReply(payload)
	if err != nil {
		return herrors.Wrap(herrors.InvalidKexReply, "parsing KEXDH_REPLY", err)
	}
	h.hostKeyBlob = reply.HostKeyBlob
	h.fValue = reply.F
	h.sigBlob = reply.SignatureBlob
	h.phase = phaseKexDHVerify
	return nil
}

// verify computes the shared secret, the exchange hash, and checks the
// server's signature over it.
func (h *Handshake) verify() error {
	secret, err := h.group.Agree(h.ephPriv, h.fValue)
	if err != nil {
		return herrors.Wrap(herrors.KexFailed, "computing shared secret", err)
	}
	h.sharedSecret = secret

	th := transcript.New(h.group.Hash)
	th.WriteString([]byte(h.ownLine))
	th.WriteString([]byte(h.peerLine))
	th.WriteString(h.ic)
	th.WriteString(h.isPkt)
	th.WriteString(h.hostKeyBlob)
	th.WriteString(h.ephPub)
	th.WriteString(h.fValue)
	th.WriteMPInt(new(big.Int).SetBytes(secret))
	h.exchangeHash = th.Sum()

	pub, err := hostkey.ParsePublicKey(h.hostKeyBlob)
	if err != nil {
		var he *herrors.Error
		if errors.As(err, &he) {
			return err
		}
		return herrors.Wrap(herrors.InvalidKexReply, "parsing server host key", err)
	}
	sig, err := hostkey.ParseSignature(h.sigBlob)
	if err != nil {
		return herrors.Wrap(herrors.InvalidKexReply, "parsing server signature", err)
	}
	if err := hostkey.Verify(pub, h.exchangeHash, sig); err != nil {
		return herrors.Wrap(herrors.ServerKeyNotVerified, "exchange hash signature did not verify", err)
	}
	logger.LogDebug("server host key signature verified")
	return nil
}

// pollNewKeysWrite sends SSH_MSG_NEWKEYS exactly once, per spec.md §9(d)
// (gated on newKeysWritten rather than re-emitted on every poll).
func (h *Handshake) pollNewKeysWrite() error {
	if !h.newKeysWritten {
		if err := h.pw.WritePacket(NewKeys()); err != nil {
			return herrors.Wrap(herrors.Io, "framing NEWKEYS packet", err)
		}
		h.newKeysWritten = true
	}
	h.phase = phaseNewKeysFlush
	return nil
}
