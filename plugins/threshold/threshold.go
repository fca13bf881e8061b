// Package threshold implements a bidirectional converter that zeroes out
// position values below a configurable threshold, and accepts a reverse
// command to change that threshold at runtime. Grounded on
// original_source/examples/converter/bidirectional_converter.py:
// ExampleConverter (setup_transceiver/interpret_data/handle_command).
package threshold

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/daqlab/onlinemonitor/codec/ndarray"
	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/plugin"
)

const Kind = "threshold"

func init() {
	plugin.Default.Register(Kind, func(cfg models.WorkerConfig) (any, error) {
		return New(cfg.Name), nil
	})
}

// Threshold zeroes array elements below a runtime-adjustable threshold.
// The threshold itself is int64-valued, matching the original's
// int(command[0]) coercion.
type Threshold struct {
	name      string
	threshold atomic.Int64
}

// New constructs a Threshold converter starting at threshold 0 (matching
// setup_transceiver's self.threshold = 0).
func New(name string) *Threshold {
	return &Threshold{name: name}
}

// Interpret applies the current threshold to the first message's "position"
// array and returns a single outbound message carrying the masked array
// alongside the original time_stamp — but only when at least one element
// remains above zero after masking (matching "only return data if any
// position info is above threshold").
func (t *Threshold) Interpret(batch []models.InboundMessage) ([]any, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	data, ok := batch[0].Payload.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("threshold: expected a JSON object payload, got %T", batch[0].Payload)
	}

	position, ok := data["position"].(*ndarray.Array)
	if !ok {
		return nil, fmt.Errorf("threshold: payload has no ndarray \"position\" field")
	}

	masked, anyAbove := applyThreshold(position, t.threshold.Load())
	if !anyAbove {
		return nil, nil
	}

	out := map[string]any{
		"time_stamp": data["time_stamp"],
		fmt.Sprintf("position_with_threshold_%s", t.name): masked,
	}
	return []any{out}, nil
}

// HandleCommand sets the threshold from an incoming Command (the original's
// handle_command: self.threshold = int(command[0])).
func (t *Threshold) HandleCommand(cmd models.Command) error {
	v, err := toInt64(cmd.Value)
	if err != nil {
		return fmt.Errorf("threshold: handle command: %w", err)
	}
	t.threshold.Store(v)
	return nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case float64:
		return int64(n), nil
	case int:
		return int64(n), nil
	case int64:
		return n, nil
	case string:
		return strconv.ParseInt(strings.TrimSpace(n), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported command value type %T", v)
	}
}

// applyThreshold zeroes every element below threshold, returning the masked
// copy and whether any element remained non-zero.
func applyThreshold(arr *ndarray.Array, threshold int64) (*ndarray.Array, bool) {
	masked := &ndarray.Array{Dtype: arr.Dtype, Shape: append([]int(nil), arr.Shape...), Data: append([]byte(nil), arr.Data...)}
	anyAboveThreshold := false

	switch arr.Dtype {
	case "int64", "uint64", "float64":
		for i := 0; i+8 <= len(masked.Data); i += 8 {
			val := decodeElem(masked.Data[i : i+8])
			below, nonZero := val < threshold, val != 0
			if arr.Dtype == "float64" {
				f := math.Float64frombits(uint64(val))
				below, nonZero = f < float64(threshold), f != 0
			}
			if below {
				zeroElem(masked.Data[i : i+8])
			} else if nonZero {
				anyAboveThreshold = true
			}
		}
	default:
		// Unsupported dtype for masking: treat every element as already
		// above threshold rather than silently corrupting unknown layouts.
		anyAboveThreshold = len(masked.Data) > 0
	}

	return masked, anyAboveThreshold
}

func decodeElem(b []byte) int64 {
	var v int64
	for i := 0; i < 8; i++ {
		v |= int64(b[i]) << (8 * i)
	}
	return v
}

func zeroElem(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
