// Package jsonnum implements the JSON+NumArray wire codec: ordinary JSON with
// an extension object for numeric arrays, matching
// online_monitor.utils.NumpyEncoder / json_numpy_obj_hook. Array payloads are
// lz4-compressed before base64 encoding when they are large enough to be
// worth it.
package jsonnum

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/pierrec/lz4/v3"

	"github.com/daqlab/onlinemonitor/codec"
	"github.com/daqlab/onlinemonitor/codec/ndarray"
)

// compressThreshold is the minimum raw byte length before a payload is
// lz4-compressed. Small arrays compress worse than they save on CPU.
const compressThreshold = 256

// wireArray is the `__ndarray__` extension object, field-for-field what
// NumpyEncoder.default() emits (plus the two compression fields, which are
// absent entirely when Compressed is false so uncompressed frames stay
// byte-compatible with the original format).
type wireArray struct {
	Data       string `json:"__ndarray__"`
	Dtype      string `json:"dtype"`
	Shape      []int  `json:"shape"`
	Compressed bool   `json:"compressed,omitempty"`
	RawSize    int    `json:"raw_size,omitempty"`
}

// Codec implements codec.Codec for the JSON+NumArray wire format.
type Codec struct {
	logger *slog.Logger
}

// New constructs a JSON+NumArray Codec.
func New(logger *slog.Logger) *Codec {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	return &Codec{logger: logger}
}

var _ codec.Codec = (*Codec)(nil)

// Serialize walks payload, replacing every *ndarray.Array with its
// __ndarray__ extension object, then marshals the result as JSON.
func (c *Codec) Serialize(payload any) ([]byte, error) {
	wire, err := toWire(payload)
	if err != nil {
		return nil, fmt.Errorf("jsonnum: serialize: %w", err)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("jsonnum: serialize: %w", err)
	}
	return data, nil
}

// Deserialize parses frame as JSON and replaces every __ndarray__ extension
// object it finds (at any nesting depth) with an *ndarray.Array.
func (c *Codec) Deserialize(frame []byte) (any, error) {
	var v any
	if err := json.Unmarshal(frame, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrUndecodable, err)
	}
	out, err := fromWire(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", codec.ErrUndecodable, err)
	}
	return out, nil
}

// toWire recursively converts ndarray.Array values into wireArray objects
// suitable for encoding/json, leaving everything else untouched.
func toWire(v any) (any, error) {
	switch t := v.(type) {
	case *ndarray.Array:
		return encodeArray(t)
	case ndarray.Array:
		return encodeArray(&t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			conv, err := toWire(val)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			conv, err := toWire(val)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}

// fromWire recursively converts __ndarray__ extension objects back into
// *ndarray.Array values, bottom-up (children resolved before their parent is
// inspected), matching json_numpy_obj_hook's per-dict invocation order.
func fromWire(v any) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			conv, err := fromWire(val)
			if err != nil {
				return nil, err
			}
			out[k] = conv
		}
		if _, ok := out["__ndarray__"]; ok {
			return decodeArrayMap(out)
		}
		return out, nil
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			conv, err := fromWire(val)
			if err != nil {
				return nil, err
			}
			out[i] = conv
		}
		return out, nil
	default:
		return v, nil
	}
}

func encodeArray(a *ndarray.Array) (wireArray, error) {
	if _, err := a.Contiguous(); err != nil {
		return wireArray{}, err
	}
	raw := a.Data
	compressed := false
	if len(raw) >= compressThreshold {
		bound := lz4.CompressBlockBound(len(raw))
		dst := make([]byte, bound)
		ht := make([]int, 64<<10)
		n, err := lz4.CompressBlock(raw, dst, ht)
		if err == nil && n > 0 && n < len(raw) {
			raw = dst[:n]
			compressed = true
		}
	}
	w := wireArray{
		Data:       base64.StdEncoding.EncodeToString(raw),
		Dtype:      a.Dtype,
		Shape:      a.Shape,
		Compressed: compressed,
	}
	if compressed {
		w.RawSize = len(a.Data)
	}
	return w, nil
}

func decodeArrayMap(m map[string]any) (*ndarray.Array, error) {
	b64, ok := m["__ndarray__"].(string)
	if !ok {
		return nil, fmt.Errorf("jsonnum: __ndarray__ is not a string")
	}
	dtype, _ := m["dtype"].(string)
	raw, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("jsonnum: base64 decode: %w", err)
	}

	compressed, _ := m["compressed"].(bool)
	if compressed {
		rawSizeF, _ := m["raw_size"].(float64)
		rawSize := int(rawSizeF)
		dst := make([]byte, rawSize)
		n, err := lz4.UncompressBlock(raw, dst)
		if err != nil {
			return nil, fmt.Errorf("jsonnum: lz4 decompress: %w", err)
		}
		raw = dst[:n]
	}

	shape, err := decodeShape(m["shape"])
	if err != nil {
		return nil, err
	}

	arr := &ndarray.Array{Dtype: dtype, Shape: shape, Data: raw}
	if err := arr.Validate(); err != nil {
		return nil, err
	}
	return arr, nil
}

func decodeShape(v any) ([]int, error) {
	list, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("jsonnum: shape is not an array")
	}
	shape := make([]int, len(list))
	for i, d := range list {
		f, ok := d.(float64)
		if !ok {
			return nil, fmt.Errorf("jsonnum: shape element %d is not a number", i)
		}
		shape[i] = int(f)
	}
	return shape, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
