package handshake

import "blitter.com/go/sshkex/kex"

// Preferences is one side's ordered algorithm preference lists, in the
// order RFC 4253 §7.1 negotiates them. The client's order decides among
// whatever both peers advertise; see firstCommon.
type Preferences struct {
	Kex                     []KexAlgo
	ServerHostKey           []HostKeyAlgo
	EncryptionClientServer  []string
	EncryptionServerClient  []string
	MACClientServer         []string
	MACServerClient         []string
	CompressionClientServer []string
	CompressionServerClient []string
	LanguagesClientServer   []string
	LanguagesServerClient   []string
}

// DefaultPreferences returns the minimal algorithm set spec.md names as
// the wire-acceptable core: both KEX groups (Curve25519 preferred),
// ssh-rsa as the sole host-key algorithm, the encryption/MAC names this
// implementation announces but never itself uses (they're consumed by
// the post-NEWKEYS layer), no compression, and no language preference.
func DefaultPreferences() Preferences {
	enc := []string{"aes256-ctr", "aes256-cbc", "aes256-gcm@openssh.com"}
	mac := []string{"hmac-sha2-256"}
	return Preferences{
		Kex:                     []KexAlgo{KexCurve25519SHA256, KexECDHSHA2NISTP256},
		ServerHostKey:           []HostKeyAlgo{SSHRSA},
		EncryptionClientServer:  enc,
		EncryptionServerClient:  enc,
		MACClientServer:         mac,
		MACServerClient:         mac,
		CompressionClientServer: []string{"none"},
		CompressionServerClient: []string{"none"},
		LanguagesClientServer:   []string{},
		LanguagesServerClient:   []string{},
	}
}

// Config carries everything the handshake needs to construct but isn't
// part of the transport it drives: the client's own identification
// string and its algorithm preferences. The random source used for the
// KEXINIT cookie, padding, and ephemeral key generation is not part of
// Config; it is passed to New separately. Config replaces the variadic
// extension-string argument the teacher's session constructors use.
type Config struct {
	// ClientSoftwareVersion is the softwareversion token of this
	// implementation's "SSH-2.0-<softwareversion> <comments>" line, e.g.
	// "sshkex_1.0".
	ClientSoftwareVersion string
	// Comments is the free-form text following the softwareversion
	// token; may be empty.
	Comments string
	// Prefs is this client's ordered algorithm preference lists.
	Prefs Preferences
}

// NegotiatedAlgorithm is the result of AlgorithmExchange: exactly one
// algorithm per category, each chosen by firstCommon over this client's
// preference list and the peer's advertised list.
type NegotiatedAlgorithm struct {
	Kex                     KexAlgo
	ServerHostKey           HostKeyAlgo
	EncryptionClientServer  string
	EncryptionServerClient  string
	MACClientServer         string
	MACServerClient         string
	CompressionClientServer string
	CompressionServerClient string
}

// SecureContext is the handshake's successful result: the negotiated
// algorithm set and the session_id (the exchange hash H, fixed for the
// lifetime of the connection per RFC 4253 §7.2).
type SecureContext struct {
	Algorithms   NegotiatedAlgorithm
	SessionID    []byte
	Group        kex.Group
	SharedSecret []byte
}
