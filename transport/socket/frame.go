package socket

import (
	"encoding/binary"
	"fmt"
	"io"
)

// maxFrameSize guards against a corrupt or malicious length prefix causing an
// unbounded allocation.
const maxFrameSize = 64 << 20 // 64 MiB

// writeFrame writes payload as a single length-prefixed frame: a 4-byte
// big-endian length followed by the payload bytes.
func writeFrame(w io.Writer, payload []byte) error {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("socket: write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("socket: write frame body: %w", err)
	}
	return nil
}

// readFrame reads a single length-prefixed frame written by writeFrame.
func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(header[:])
	if n > maxFrameSize {
		return nil, fmt.Errorf("socket: frame size %d exceeds maximum %d", n, maxFrameSize)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("socket: read frame body: %w", err)
	}
	return buf, nil
}
