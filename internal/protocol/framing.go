package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// LengthPrefixSize is the width of the framing length prefix on every
// message read off an ingress socket, client-originated or internal.
const LengthPrefixSize = 4

// MaxFrameLength bounds a single framed message. It exists only to stop a
// malformed length prefix from driving an unbounded allocation; the spec
// itself places no ceiling on weight-blob size.
const MaxFrameLength = 512 << 20

// ReadFrame reads one length-prefixed message from r: a 4-byte big-endian
// length followed by exactly that many bytes. It is the transport-layer
// counterpart to the old AOCS header reader, trimmed to the framing this
// protocol actually uses.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [LengthPrefixSize]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameLength {
		return nil, fmt.Errorf("protocol: frame length %d exceeds maximum %d", n, MaxFrameLength)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("protocol: read frame payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload to w prefixed with its 4-byte big-endian
// length.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("protocol: write frame length: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("protocol: write frame payload: %w", err)
	}
	return nil
}

// AckPayload is the literal acknowledgment an ingress connection writes
// back after reading each inbound frame, before that frame is handled.
var AckPayload = []byte("Ack")
