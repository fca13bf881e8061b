package threshold_test

import (
	"encoding/binary"
	"testing"

	"github.com/daqlab/onlinemonitor/codec/ndarray"
	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/plugins/threshold"
)

func int64Array(vals ...int64) *ndarray.Array {
	data := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[i*8:(i+1)*8], uint64(v))
	}
	return &ndarray.Array{Dtype: "int64", Shape: []int{len(vals)}, Data: data}
}

func decodeInt64s(data []byte) []int64 {
	out := make([]int64, len(data)/8)
	for i := range out {
		out[i] = int64(binary.LittleEndian.Uint64(data[i*8 : (i+1)*8]))
	}
	return out
}

// TestThreshold_MasksBelowThreshold exercises S3: given threshold 8, values
// below 8 are zeroed and values at or above 8 pass through unchanged.
func TestThreshold_MasksBelowThreshold(t *testing.T) {
	th := threshold.New("conv1")
	if err := th.HandleCommand(models.Command{Kind: "threshold", Value: float64(8)}); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}

	batch := []models.InboundMessage{{
		Frontend: "producer",
		Payload: map[string]any{
			"time_stamp": 1.0,
			"position":   int64Array(2, 9, 5, 8, 0),
		},
	}}

	out, err := th.Interpret(batch)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("Interpret() returned %d outputs, want 1", len(out))
	}
	result := out[0].(map[string]any)
	masked := result["position_with_threshold_conv1"].(*ndarray.Array)
	got := decodeInt64s(masked.Data)
	want := []int64{0, 9, 0, 8, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("element %d = %d, want %d", i, got[i], want[i])
		}
	}
}

func TestThreshold_AllBelowThresholdYieldsNoOutput(t *testing.T) {
	th := threshold.New("conv1")
	_ = th.HandleCommand(models.Command{Kind: "threshold", Value: float64(8)})

	batch := []models.InboundMessage{{
		Payload: map[string]any{
			"time_stamp": 1.0,
			"position":   int64Array(1, 2, 3),
		},
	}}

	out, err := th.Interpret(batch)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if out != nil {
		t.Errorf("Interpret() = %v, want nil (everything below threshold)", out)
	}
}

// TestThreshold_HandleCommandUpdatesThreshold exercises S4: a reverse
// command changes the threshold applied to subsequent batches.
func TestThreshold_HandleCommandUpdatesThreshold(t *testing.T) {
	th := threshold.New("conv1")

	batch := []models.InboundMessage{{
		Payload: map[string]any{"time_stamp": 1.0, "position": int64Array(1, 2, 3)},
	}}
	out, err := th.Interpret(batch)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if out == nil {
		t.Fatal("with threshold 0, every non-zero element should pass")
	}

	if err := th.HandleCommand(models.Command{Kind: "threshold", Value: "five"}); err == nil {
		t.Error("expected an error for a non-numeric command value")
	}
	if err := th.HandleCommand(models.Command{Kind: "threshold", Value: float64(5)}); err != nil {
		t.Fatalf("HandleCommand() error = %v", err)
	}

	out, err = th.Interpret(batch)
	if err != nil {
		t.Fatalf("Interpret() error = %v", err)
	}
	if out != nil {
		t.Errorf("after raising threshold to 5, batch with max value 3 should yield no output, got %v", out)
	}
}
