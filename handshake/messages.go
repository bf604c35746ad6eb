package handshake

import (
	"blitter.com/go/sshkex/wire"
)

// SSH message numbers this implementation sends or parses (RFC 4253
// §12, restricted to the pre-encryption subset spec.md names).
const (
	MsgKexInit    = 20
	MsgNewKeys    = 21
	MsgKexDHInit  = 30
	MsgKexDHReply = 31
)

// AlgorithmNegotiation is the SSH_MSG_KEXINIT payload: RFC 4253 §7.1, a
// 16-byte cookie, ten name-lists in fixed order, and two trailing
// fields. The message-number byte (20) is not part of this struct;
// Marshal writes it and ParseAlgorithmNegotiation checks it.
type AlgorithmNegotiation struct {
	Cookie                  [16]byte
	KexAlgorithms           []KexAlgo
	ServerHostKeyAlgorithms []HostKeyAlgo
	EncryptionClientServer  []string
	EncryptionServerClient  []string
	MACClientServer         []string
	MACServerClient         []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
	FirstKexPacketFollows   bool
	Reserved                uint32
}

// Marshal encodes the KEXINIT payload, including the leading message
// number byte, in the exact field order RFC 4253 §7.1 specifies.
func (a *AlgorithmNegotiation) Marshal() []byte {
	e := wire.NewEncoder()
	e.Byte(MsgKexInit)
	e.Raw(a.Cookie[:])
	e.NameList(kexAlgoStrings(a.KexAlgorithms))
	e.NameList(hostKeyAlgoStrings(a.ServerHostKeyAlgorithms))
	e.NameList(a.EncryptionClientServer)
	e.NameList(a.EncryptionServerClient)
	e.NameList(a.MACClientServer)
	e.NameList(a.MACServerClient)
	e.NameList(a.CompressionClientServer)
	e.NameList(a.CompressionServerClient)
	e.NameList(a.LanguagesClientServer)
	e.NameList(a.LanguagesServerClient)
	e.Bool(a.FirstKexPacketFollows)
	e.Uint32(a.Reserved)
	return e.Bytes()
}

// ParseAlgorithmNegotiation decodes a KEXINIT payload. payload must
// include the leading message-number byte, which is checked but not
// otherwise consumed by the caller.
func ParseAlgorithmNegotiation(payload []byte) (*AlgorithmNegotiation, error) {
	d := wire.NewDecoder(payload)
	msgType, err := d.Byte()
	if err != nil {
		return nil, err
	}
	if msgType != MsgKexInit {
		return nil, errUnexpectedMessage(MsgKexInit, msgType)
	}
	a := &AlgorithmNegotiation{}
	cookie, err := d.Raw(16)
	if err != nil {
		return nil, err
	}
	copy(a.Cookie[:], cookie)

	fields := []*[]string{
		nil, nil, // kex, hostkey handled specially below
		&a.EncryptionClientServer,
		&a.EncryptionServerClient,
		&a.MACClientServer,
		&a.MACServerClient,
		&a.CompressionClientServer,
		&a.CompressionServerClient,
		&a.LanguagesClientServer,
		&a.LanguagesServerClient,
	}
	kexNames, err := d.NameList()
	if err != nil {
		return nil, err
	}
	a.KexAlgorithms = kexAlgos(kexNames)

	hkNames, err := d.NameList()
	if err != nil {
		return nil, err
	}
	a.ServerHostKeyAlgorithms = hostKeyAlgos(hkNames)

	for _, f := range fields[2:] {
		names, err := d.NameList()
		if err != nil {
			return nil, err
		}
		*f = names
	}
	a.FirstKexPacketFollows, err = d.Bool()
	if err != nil {
		return nil, err
	}
	a.Reserved, err = d.Uint32()
	if err != nil {
		return nil, err
	}
	return a, nil
}

// KexDHInit is the SSH_MSG_KEXDH_INIT payload: the client's ephemeral
// public value e, encoded as an SSH string (raw point octets for
// Curve25519/NIST-P256 — no mpint wrap).
type KexDHInit struct {
	E []byte
}

func (m *KexDHInit) Marshal() []byte {
	e := wire.NewEncoder()
	e.Byte(MsgKexDHInit)
	e.String(m.E)
	return e.Bytes()
}

func ParseKexDHInit(payload []byte) (*KexDHInit, error) {
	d := wire.NewDecoder(payload)
	msgType, err := d.Byte()
	if err != nil {
		return nil, err
	}
	if msgType != MsgKexDHInit {
		return nil, errUnexpectedMessage(MsgKexDHInit, msgType)
	}
	e, err := d.String()
	if err != nil {
		return nil, err
	}
	return &KexDHInit{E: e}, nil
}

// KexDHReply is the SSH_MSG_KEXDH_REPLY payload: the server's host-key
// blob, its ephemeral public value f, and its signature over the
// exchange hash — each carried as an SSH string; the host-key and
// signature fields are nested blobs, f is the raw public value.
type KexDHReply struct {
	HostKeyBlob   []byte // K_S, the raw blob as it appeared on the wire
	F             []byte
	SignatureBlob []byte
}

func ParseKexDHReply(payload []byte) (*KexDHReply, error) {
	d := wire.NewDecoder(payload)
	msgType, err := d.Byte()
	if err != nil {
		return nil, err
	}
	if msgType != MsgKexDHReply {
		return nil, errUnexpectedMessage(MsgKexDHReply, msgType)
	}
	hostKey, err := d.String()
	if err != nil {
		return nil, err
	}
	f, err := d.String()
	if err != nil {
		return nil, err
	}
	sig, err := d.String()
	if err != nil {
		return nil, err
	}
	return &KexDHReply{HostKeyBlob: hostKey, F: f, SignatureBlob: sig}, nil
}

// NewKeys encodes the SSH_MSG_NEWKEYS payload: a single message-number
// byte, no fields.
func NewKeys() []byte { return []byte{MsgNewKeys} }
