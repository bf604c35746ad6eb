package handshake

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"errors"
	"math/big"
	"net"
	"testing"
	"time"

	"blitter.com/go/sshkex/asyncio"
	"blitter.com/go/sshkex/herrors"
	"blitter.com/go/sshkex/kex"
	"blitter.com/go/sshkex/packet"
	"blitter.com/go/sshkex/transcript"
	"blitter.com/go/sshkex/wire"
)

func bigFromInt(v int) *big.Int { return big.NewInt(int64(v)) }

// serverTranscript is a thin wrapper matching the handshake package's own
// exchange-hash sequencing, kept separate in this test file so the test
// exercises an independent construction of the transcript rather than
// reusing the client's internal helper.
type serverTranscript struct {
	h *transcript.Hasher
}

func newTranscript(g kex.Group) *serverTranscript {
	return &serverTranscript{h: transcript.New(g.Hash)}
}

func (s *serverTranscript) WriteString(b []byte) { s.h.WriteString(b) }

func (s *serverTranscript) WriteMPIntBytes(b []byte) {
	s.h.WriteMPInt(new(big.Int).SetBytes(b))
}

func (s *serverTranscript) Sum() []byte { return s.h.Sum() }

// netConnSource/netConnSink adapt a blocking net.Conn to the asyncio
// Source/Sink contracts. Blocking instead of ever returning
// asyncio.ErrWouldBlock is a valid degenerate case of that contract
// (ErrWouldBlock is a hint, never a requirement), which keeps this
// end-to-end test free of a real event loop.
type netConnSource struct{ c net.Conn }

func (s netConnSource) Read(p []byte) (int, error) { return s.c.Read(p) }

type netConnSink struct{ c net.Conn }

func (s netConnSink) Write(p []byte) (int, error) { return s.c.Write(p) }

// fakeServer plays the minimum server side of the handshake directly
// against the wire/packet primitives (not the client's state machine),
// so the test exercises the client's Handshake against an independent
// implementation of the same wire contract.
func fakeServer(t *testing.T, conn net.Conn, hostKey *rsa.PrivateKey) {
	t.Helper()

	if _, err := conn.Write([]byte("SSH-2.0-OpenSSH_7.4 test\r\n")); err != nil {
		t.Errorf("server: writing version line: %v", err)
		return
	}

	ar := asyncio.NewReader(netConnSource{conn})
	aw := asyncio.NewWriter(netConnSink{conn})

	vLine, err := ar.ReadUntil('\n', 254)
	if err != nil {
		t.Errorf("server: reading client version line: %v", err)
		return
	}
	vc := string(vLine)
	if len(vc) > 0 && vc[len(vc)-1] == '\r' {
		vc = vc[:len(vc)-1]
	}

	pr := packet.NewReader(ar)
	pw := packet.NewWriter(aw, 0, rand.Reader)

	icPayload, err := pr.ReadPacket()
	if err != nil {
		t.Errorf("server: reading client KEXINIT: %v", err)
		return
	}

	serverKexInit := &AlgorithmNegotiation{
		KexAlgorithms:           []KexAlgo{KexCurve25519SHA256, KexECDHSHA2NISTP256},
		ServerHostKeyAlgorithms: []HostKeyAlgo{SSHRSA},
		EncryptionClientServer:  []string{"aes256-ctr"},
		EncryptionServerClient:  []string{"aes256-ctr"},
		MACClientServer:         []string{"hmac-sha2-256"},
		MACServerClient:         []string{"hmac-sha2-256"},
		CompressionClientServer: []string{"none"},
		CompressionServerClient: []string{"none"},
		LanguagesClientServer:   []string{},
		LanguagesServerClient:   []string{},
	}
	isPayload := serverKexInit.Marshal()
	if err := pw.WritePacket(isPayload); err != nil {
		t.Errorf("server: writing KEXINIT: %v", err)
		return
	}
	if _, err := pw.Flush(); err != nil {
		t.Errorf("server: flushing KEXINIT: %v", err)
		return
	}

	dhInitPayload, err := pr.ReadPacket()
	if err != nil {
		t.Errorf("server: reading KEXDH_INIT: %v", err)
		return
	}
	dhInit, err := ParseKexDHInit(dhInitPayload)
	if err != nil {
		t.Errorf("server: parsing KEXDH_INIT: %v", err)
		return
	}

	group := kex.Curve25519{}
	serverPriv, serverPub, err := group.Generate(rand.Reader)
	if err != nil {
		t.Errorf("server: generating ephemeral key: %v", err)
		return
	}
	secret, err := group.Agree(serverPriv, dhInit.E)
	if err != nil {
		t.Errorf("server: key agreement: %v", err)
		return
	}

	hostKeyBlob := marshalRSAHostKey(&hostKey.PublicKey)

	th := newTranscript(group)
	th.WriteString([]byte(vc))
	th.WriteString([]byte("SSH-2.0-OpenSSH_7.4 test"))
	th.WriteString(icPayload)
	th.WriteString(isPayload)
	th.WriteString(hostKeyBlob)
	th.WriteString(dhInit.E)
	th.WriteString(serverPub)
	th.WriteMPIntBytes(secret)
	h := th.Sum()

	digest := sha1.Sum(h)
	sigBytes, err := rsa.SignPKCS1v15(rand.Reader, hostKey, crypto.SHA1, digest[:])
	if err != nil {
		t.Errorf("server: signing exchange hash: %v", err)
		return
	}
	sigBlob := marshalSignatureBlob(sigBytes)

	reply := &KexDHReply{HostKeyBlob: hostKeyBlob, F: serverPub, SignatureBlob: sigBlob}
	replyPayload := marshalKexDHReply(reply)
	if err := pw.WritePacket(replyPayload); err != nil {
		t.Errorf("server: writing KEXDH_REPLY: %v", err)
		return
	}
	if _, err := pw.Flush(); err != nil {
		t.Errorf("server: flushing KEXDH_REPLY: %v", err)
		return
	}

	if _, err := pr.ReadPacket(); err != nil {
		t.Errorf("server: reading client NEWKEYS: %v", err)
		return
	}
}

func marshalRSAHostKey(pub *rsa.PublicKey) []byte {
	e := wire.NewEncoder()
	e.Text("ssh-rsa")
	e.MPInt(bigFromInt(pub.E))
	e.MPInt(pub.N)
	return e.Bytes()
}

func marshalSignatureBlob(sig []byte) []byte {
	e := wire.NewEncoder()
	e.Text("ssh-rsa")
	e.String(sig)
	return e.Bytes()
}

func marshalKexDHReply(r *KexDHReply) []byte {
	e := wire.NewEncoder()
	e.Byte(MsgKexDHReply)
	e.String(r.HostKeyBlob)
	e.String(r.F)
	e.String(r.SignatureBlob)
	return e.Bytes()
}

func TestHandshakeEndToEnd(t *testing.T) {
	hostKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}

	// A real loopback TCP socket is used instead of net.Pipe: net.Pipe is
	// fully unbuffered, so both sides' opening writes (the version line)
	// would deadlock waiting for a reader that hasn't been reached yet.
	// A kernel socket buffer is large enough to hold the handful of
	// handshake messages exchanged here without either side blocking.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()

	serverDone := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		serverDone <- conn
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer clientConn.Close()

	serverConn := <-serverDone
	defer serverConn.Close()

	go fakeServer(t, serverConn, hostKey)

	cfg := Config{
		ClientSoftwareVersion: "sshkex_1.0",
		Prefs:                 DefaultPreferences(),
	}
	hs := New(netConnSource{clientConn}, netConnSink{clientConn}, rand.Reader, cfg)

	done := make(chan struct {
		ctx *SecureContext
		err error
	}, 1)
	go func() {
		for {
			ctx, err := hs.Poll()
			if err != nil || ctx != nil {
				done <- struct {
					ctx *SecureContext
					err error
				}{ctx, err}
				return
			}
		}
	}()

	select {
	case result := <-done:
		if result.err != nil {
			t.Fatalf("handshake failed: %v", result.err)
		}
		if result.ctx == nil {
			t.Fatal("expected a SecureContext")
		}
		if result.ctx.Algorithms.Kex != KexCurve25519SHA256 {
			t.Fatalf("unexpected negotiated kex algorithm: %v", result.ctx.Algorithms.Kex)
		}
		if result.ctx.Algorithms.ServerHostKey != SSHRSA {
			t.Fatalf("unexpected negotiated host-key algorithm: %v", result.ctx.Algorithms.ServerHostKey)
		}
		if len(result.ctx.SessionID) != 32 {
			t.Fatalf("session_id length = %d, want 32 (SHA-256)", len(result.ctx.SessionID))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("handshake did not complete in time")
	}
}

// fixedSource feeds back a fixed byte slice, then reports
// asyncio.ErrWouldBlock once exhausted.
type fixedSource struct{ data []byte }

func (s *fixedSource) Read(p []byte) (int, error) {
	if len(s.data) == 0 {
		return 0, asyncio.ErrWouldBlock
	}
	n := copy(p, s.data)
	s.data = s.data[n:]
	return n, nil
}

// TestPollVersionReadRejectsBareLF covers spec.md §4.6 S0: a peer line
// terminated with a bare LF (no CR) must be rejected even though it
// otherwise starts with the correct prefix. strings.TrimSuffix on a
// string lacking the suffix is a silent no-op, so the CRLF requirement
// must be checked explicitly rather than inferred from trimming.
func TestPollVersionReadRejectsBareLF(t *testing.T) {
	h := &Handshake{ar: asyncio.NewReader(&fixedSource{data: []byte("SSH-2.0-foo\n")})}
	err := h.pollVersionRead()
	var he *herrors.Error
	if !errors.As(err, &he) || he.Kind != herrors.InvalidVersionExchange {
		t.Fatalf("expected InvalidVersionExchange for a bare-LF peer line, got %v", err)
	}
}

// discardSink accepts and drops every write, counting the bytes it was
// given, modeling a caller tearing down a connection.
type discardSink struct{ n *int }

func (s discardSink) Write(p []byte) (int, error) { *s.n += len(p); return len(p), nil }

// TestHandshakeCloseFlushesBufferedWriter covers spec.md §5's
// cancellation policy: Close gives the writer one best-effort flush
// attempt rather than silently dropping whatever the handshake had
// queued when the caller abandons it.
func TestHandshakeCloseFlushesBufferedWriter(t *testing.T) {
	var written int
	h := New(&fixedSource{}, discardSink{&written}, rand.Reader, Config{
		ClientSoftwareVersion: "sshkex_1.0",
		Prefs:                 DefaultPreferences(),
	})
	if err := h.pw.WritePacket([]byte{MsgNewKeys}); err != nil {
		t.Fatal(err)
	}
	h.Close() // must not panic, and must attempt to drain the buffered packet
	if written == 0 {
		t.Fatal("Close did not flush the buffered packet to the sink")
	}
}

// TestVerifyPreservesUnknownCertTypeKind covers the requirement that
// hostkey.ParsePublicKey's UnknownCertType failure propagates through
// Handshake.verify unchanged, rather than being collapsed into a
// generic InvalidKexReply.
func TestVerifyPreservesUnknownCertTypeKind(t *testing.T) {
	group := kex.Curve25519{}
	priv, pub, err := group.Generate(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	_, peerPub, err := group.Generate(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	blob := wire.NewEncoder()
	blob.Text("ssh-ed25519")
	blob.String([]byte("opaque-variant-fields"))

	h := &Handshake{
		group:       group,
		ephPriv:     priv,
		ephPub:      pub,
		fValue:      peerPub,
		hostKeyBlob: blob.Bytes(),
	}
	err = h.verify()
	var he *herrors.Error
	if !errors.As(err, &he) || he.Kind != herrors.UnknownCertType {
		t.Fatalf("expected UnknownCertType to propagate from hostkey.ParsePublicKey, got %v", err)
	}
}
