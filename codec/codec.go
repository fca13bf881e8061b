// Package codec defines the wire-serialization boundary shared by every
// Transceiver, Producer, and Receiver. Two implementations are provided:
// codec/jsonnum (JSON with a numpy-array extension) and codec/packed (a
// compact binary form). Both satisfy the Codec interface below.
package codec

import "errors"

// Codec serializes and deserializes the payloads a Transceiver sends and
// receives. Implementations must be safe for concurrent use by multiple
// goroutines calling Serialize, and separately by multiple goroutines calling
// Deserialize (a Transceiver runs one receive goroutine per frontend, all
// sharing one Codec).
type Codec interface {
	// Serialize converts a single payload value into wire bytes.
	Serialize(payload any) ([]byte, error)

	// Deserialize converts wire bytes back into a payload value. It returns
	// ErrUndecodable (wrapped) when the frame is structurally invalid; the
	// caller drops only the offending message (I-style error isolation,
	// spec.md §7).
	Deserialize(frame []byte) (any, error)
}

// ErrUndecodable is returned (wrapped with context) by Deserialize when a
// frame cannot be parsed under the codec's wire format.
var ErrUndecodable = errors.New("codec: undecodable frame")
