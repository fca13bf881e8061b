// Package packed implements the Packed binary wire codec: raw array bytes
// followed by a JSON metadata blob, followed by a trailing little-endian
// uint32 giving the metadata blob's length. This matches
// online_monitor.utils.simple_enc / simple_dec exactly, including reading
// the length from the final four bytes of the frame rather than the first.
package packed

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/daqlab/onlinemonitor/codec"
	"github.com/daqlab/onlinemonitor/codec/ndarray"
)

// meta is the JSON blob appended after the array bytes. Extra carries any
// non-array payload fields a plugin wants round-tripped alongside the array
// (the original's simple_enc takes an arbitrary "meta" dict).
type meta struct {
	Dtype string         `json:"dtype"`
	Shape []int          `json:"shape"`
	Extra map[string]any `json:"extra,omitempty"`
}

// Codec implements codec.Codec for the Packed binary wire format. It only
// round-trips a single *ndarray.Array payload (optionally with Extra
// metadata attached via a PayloadWithExtra); any other payload type is
// rejected at Serialize time, matching the original's use of simple_enc only
// for array-producing converters.
type Codec struct{}

// New constructs a Packed Codec.
func New() *Codec { return &Codec{} }

var _ codec.Codec = (*Codec)(nil)

// PayloadWithExtra wraps an array together with sidecar metadata a plugin
// wants delivered alongside it (the original's simple_enc(data, meta) with a
// non-empty meta dict beyond dtype/shape).
type PayloadWithExtra struct {
	Array *ndarray.Array
	Extra map[string]any
}

// Serialize accepts either *ndarray.Array or PayloadWithExtra.
func (c *Codec) Serialize(payload any) ([]byte, error) {
	var arr *ndarray.Array
	var extra map[string]any

	switch p := payload.(type) {
	case *ndarray.Array:
		arr = p
	case ndarray.Array:
		arr = &p
	case PayloadWithExtra:
		arr = p.Array
		extra = p.Extra
	default:
		return nil, fmt.Errorf("packed: serialize: unsupported payload type %T", payload)
	}

	if _, err := arr.Contiguous(); err != nil {
		return nil, fmt.Errorf("packed: serialize: %w", err)
	}

	m := meta{Dtype: arr.Dtype, Shape: arr.Shape, Extra: extra}
	metaBytes, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("packed: serialize: marshal meta: %w", err)
	}

	frame := make([]byte, 0, len(arr.Data)+len(metaBytes)+4)
	frame = append(frame, arr.Data...)
	frame = append(frame, metaBytes...)

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(metaBytes)))
	frame = append(frame, lenBuf[:]...)

	return frame, nil
}

// Deserialize reverses Serialize: it reads the trailing 4-byte
// little-endian length, slices the meta blob off the end, and treats
// everything before it as the array's raw bytes.
func (c *Codec) Deserialize(frame []byte) (any, error) {
	if len(frame) < 4 {
		return nil, fmt.Errorf("%w: packed: frame shorter than length trailer", codec.ErrUndecodable)
	}
	metaLen := binary.LittleEndian.Uint32(frame[len(frame)-4:])
	if int(metaLen) > len(frame)-4 {
		return nil, fmt.Errorf("%w: packed: meta length %d exceeds frame", codec.ErrUndecodable, metaLen)
	}

	metaStart := len(frame) - 4 - int(metaLen)
	dataBytes := frame[:metaStart]
	metaBytes := frame[metaStart : len(frame)-4]

	var m meta
	if err := json.Unmarshal(metaBytes, &m); err != nil {
		return nil, fmt.Errorf("%w: packed: meta unmarshal: %v", codec.ErrUndecodable, err)
	}

	arr := &ndarray.Array{Dtype: m.Dtype, Shape: m.Shape, Data: append([]byte(nil), dataBytes...)}
	if err := arr.Validate(); err != nil {
		return nil, fmt.Errorf("%w: packed: %v", codec.ErrUndecodable, err)
	}

	if len(m.Extra) > 0 {
		return PayloadWithExtra{Array: arr, Extra: m.Extra}, nil
	}
	return arr, nil
}
