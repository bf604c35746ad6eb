package handshake

// HostKeyAlgo names a server-host-key algorithm. It is modeled as a
// plain string (the way golang.org/x/crypto/ssh's historical client code
// in the retrieval pack compares algorithm names against constants)
// rather than a closed Go sum type, so that an algorithm name this
// implementation doesn't recognize decodes and re-encodes losslessly
// instead of failing to parse — the "Unknown(name)" catch-all the spec
// calls for falls out of IsKnown() returning false rather than requiring
// a distinct constructor.
type HostKeyAlgo string

// SSHRSA is the only server-host-key algorithm this implementation
// verifies signatures for.
const SSHRSA HostKeyAlgo = "ssh-rsa"

// IsKnown reports whether a is an algorithm this implementation can act
// on (as opposed to merely carrying it through negotiation).
func (a HostKeyAlgo) IsKnown() bool { return a == SSHRSA }

// KexAlgo names a key-exchange algorithm.
type KexAlgo string

const (
	KexCurve25519SHA256 KexAlgo = "curve25519-sha256@libssh.org"
	KexECDHSHA2NISTP256 KexAlgo = "ecdh-sha2-nistp256"
)

func (a KexAlgo) IsKnown() bool {
	return a == KexCurve25519SHA256 || a == KexECDHSHA2NISTP256
}

// hostKeyAlgos converts a raw decoded name-list into typed HostKeyAlgo
// values, preserving unknown names verbatim.
func hostKeyAlgos(names []string) []HostKeyAlgo {
	out := make([]HostKeyAlgo, len(names))
	for i, n := range names {
		out[i] = HostKeyAlgo(n)
	}
	return out
}

func hostKeyAlgoStrings(algos []HostKeyAlgo) []string {
	out := make([]string, len(algos))
	for i, a := range algos {
		out[i] = string(a)
	}
	return out
}

func kexAlgos(names []string) []KexAlgo {
	out := make([]KexAlgo, len(names))
	for i, n := range names {
		out[i] = KexAlgo(n)
	}
	return out
}

func kexAlgoStrings(algos []KexAlgo) []string {
	out := make([]string, len(algos))
	for i, a := range algos {
		out[i] = string(a)
	}
	return out
}

// firstCommon returns the first element of prefs that also appears in
// peer, per RFC 4253 §7.1's negotiation rule: the client's preference
// order decides among the algorithms both sides support. ok is false if
// no element of prefs appears in peer.
func firstCommon(prefs, peer []string) (string, bool) {
	for _, p := range prefs {
		for _, q := range peer {
			if p == q {
				return p, true
			}
		}
	}
	return "", false
}
