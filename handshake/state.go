package handshake

// phase names where the handshake currently is. The driver in driver.go
// advances through these in strict order; every phase corresponds to
// one of spec.md's S0..S3 states, with S1 split into write/read/negotiate
// sub-steps and S2 into write/read/verify sub-steps so each can suspend
// independently on asyncio.ErrWouldBlock.
type phase int

const (
	phaseVersionWrite phase = iota
	phaseVersionRead
	phaseKexInitWrite
	phaseKexInitRead
	phaseKexInitNegotiate
	phaseKexDHWrite
	phaseKexDHRead
	phaseKexDHVerify
	phaseNewKeysWrite
	phaseNewKeysFlush
	phaseDone
)

// versionPrefix is the fixed banner every SSH-2 identification line
// starts with.
const versionPrefix = "SSH-2.0-"

// maxVersionLineLength is RFC 4253 §4.2's limit, CRLF included.
const maxVersionLineLength = 255
