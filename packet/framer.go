// Package packet implements the RFC 4253 §6 unencrypted binary packet
// protocol: a 5-byte header (packet_length, padding_length), the
// payload, and random padding under a block-alignment constraint — no
// cipher, no MAC, since those belong to the post-NEWKEYS layer this
// module never reaches.
//
// Grounded directly on the teacher's hkexnet.go WritePacket/Read, which
// frame payloads the same shape (length-prefixed, padded, read/written
// over a raw connection) though with an HMAC and padSide byte this
// unencrypted layer has no business carrying — adapted to RFC 4253's
// exact header layout and driven through asyncio instead of blocking
// calls.
//
// Copyright (c) 2017-2018 Russell Magee
// Licensed under the terms of the MIT license (see LICENSE.mit in this
// distribution)
//
// golang implementation by Russ Magee (rmagee_at_gmail.com)
package packet

import (
	"encoding/binary"
	"fmt"
	"io"

	"blitter.com/go/sshkex/asyncio"
	"blitter.com/go/sshkex/herrors"
)

// minPacketLength is RFC 4253 §6's floor: a packet_length below 16 is
// rejected outright.
const minPacketLength = 16

// Reader decodes packets from an asyncio.Reader. It is restartable: a
// ReadPacket call returning asyncio.ErrWouldBlock can be retried, and
// internally remembers whether the header has already been parsed so a
// retry doesn't re-read bytes already consumed from the stream.
type Reader struct {
	r             *asyncio.Reader
	headerParsed  bool
	packetLength  uint32
	paddingLength byte
}

// NewReader wraps r.
func NewReader(r *asyncio.Reader) *Reader { return &Reader{r: r} }

// ReadPacket returns the next packet's payload, or asyncio.ErrWouldBlock
// if not enough has arrived yet, or a *herrors.Error for a malformed
// header.
func (fr *Reader) ReadPacket() ([]byte, error) {
	if !fr.headerParsed {
		hdr, err := fr.r.ReadExact(5)
		if err != nil {
			return nil, err
		}
		packetLength := binary.BigEndian.Uint32(hdr[0:4])
		paddingLength := hdr[4]
		if packetLength < minPacketLength {
			return nil, herrors.New(herrors.InvalidHeader,
				fmt.Sprintf("packet_length %d below minimum %d", packetLength, minPacketLength))
		}
		if packetLength < uint32(paddingLength)+1 {
			return nil, herrors.New(herrors.InvalidHeader,
				fmt.Sprintf("packet_length %d too small for padding_length %d", packetLength, paddingLength))
		}
		fr.packetLength = packetLength
		fr.paddingLength = paddingLength
		fr.headerParsed = true
	}

	body, err := fr.r.ReadExact(int(fr.packetLength) - 1)
	if err != nil {
		return nil, err
	}
	fr.headerParsed = false

	payloadLen := int(fr.packetLength) - int(fr.paddingLength) - 1
	payload := make([]byte, payloadLen)
	copy(payload, body[:payloadLen])
	return payload, nil
}

// Writer encodes packets to an asyncio.Writer, selecting random padding
// per spec.md §4.5.
type Writer struct {
	w         *asyncio.Writer
	blockSize int
	rand      io.Reader
}

// NewWriter wraps w. blockSize is the negotiated cipher block size (0
// before NEWKEYS, per RFC 4253 the unencrypted layer aligns to 8 bytes
// regardless — "the unencrypted layer uses block_size = 0 ⇒ unit 8").
// rand must be a cryptographically secure source: the random padding is
// the only obfuscation before encryption begins.
func NewWriter(w *asyncio.Writer, blockSize int, rand io.Reader) *Writer {
	return &Writer{w: w, blockSize: blockSize, rand: rand}
}

func alignmentUnit(blockSize int) int {
	if blockSize > 8 {
		return blockSize
	}
	return 8
}

// choosePadding picks uniformly among the padding_length values in
// [4,255] that satisfy both RFC 4253's block-alignment constraint
// (5 + payloadLen + padding_length ≡ 0 mod unit) and the
// packet_length >= 16 floor. It does not always pick the smallest
// admissible value: the random padding is the connection's only
// obfuscation before encryption begins, so a predictable choice would
// defeat its purpose.
func choosePadding(payloadLen, unit int, randByte byte) byte {
	var candidates []int
	for pad := 4; pad <= 255; pad++ {
		if (5+payloadLen+pad)%unit != 0 {
			continue
		}
		if 1+payloadLen+pad < minPacketLength {
			continue
		}
		candidates = append(candidates, pad)
	}
	idx := int(randByte) % len(candidates)
	return byte(candidates[idx])
}

// WritePacket buffers a framed packet (header, payload, random padding)
// into the writer. Call Flush (or let the caller's own flush loop drive
// the underlying asyncio.Writer) to push it to the wire.
func (fw *Writer) WritePacket(payload []byte) error {
	unit := alignmentUnit(fw.blockSize)

	var randByte [1]byte
	if _, err := io.ReadFull(fw.rand, randByte[:]); err != nil {
		return herrors.Wrap(herrors.Unspecified, "reading random byte for padding selection", err)
	}
	paddingLength := choosePadding(len(payload), unit, randByte[0])

	padding := make([]byte, paddingLength)
	if _, err := io.ReadFull(fw.rand, padding); err != nil {
		return herrors.Wrap(herrors.Unspecified, "reading random padding", err)
	}

	packetLength := 1 + len(payload) + int(paddingLength)
	out := make([]byte, 0, 4+packetLength)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(packetLength))
	out = append(out, lenBuf[:]...)
	out = append(out, paddingLength)
	out = append(out, payload...)
	out = append(out, padding...)

	return fw.w.WriteExact(out)
}

// Flush drains any buffered packet bytes to the underlying sink,
// reporting Ready only once fully flushed.
func (fw *Writer) Flush() (bool, error) {
	return fw.w.Flush()
}
