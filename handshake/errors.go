package handshake

import "fmt"

// unexpectedMessageError mirrors the retrieval pack's
// massiveart-go.crypto/ssh-common.go UnexpectedMessageError: a typed
// error naming both the expected and the actual SSH message number.
type unexpectedMessageError struct {
	expected, got byte
}

func (e *unexpectedMessageError) Error() string {
	return fmt.Sprintf("handshake: unexpected message type %d (expected %d)", e.got, e.expected)
}

func errUnexpectedMessage(expected, got byte) error {
	return &unexpectedMessageError{expected: expected, got: got}
}
