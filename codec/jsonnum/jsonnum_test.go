package jsonnum_test

import (
	"encoding/binary"
	"reflect"
	"testing"

	"github.com/daqlab/onlinemonitor/codec/jsonnum"
	"github.com/daqlab/onlinemonitor/codec/ndarray"
)

func int64Array(vals ...int64) *ndarray.Array {
	data := make([]byte, len(vals)*8)
	for i, v := range vals {
		binary.LittleEndian.PutUint64(data[i*8:(i+1)*8], uint64(v))
	}
	return &ndarray.Array{Dtype: "int64", Shape: []int{len(vals)}, Data: data}
}

func TestCodec_RoundTrip_PlainJSON(t *testing.T) {
	c := jsonnum.New(nil)
	payload := map[string]any{"time_stamp": 1.0, "status": "ok"}

	frame, err := c.Serialize(payload)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	got, err := c.Deserialize(frame)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	if !reflect.DeepEqual(got, payload) {
		t.Errorf("round trip = %#v, want %#v", got, payload)
	}
}

func TestCodec_RoundTrip_SmallArray(t *testing.T) {
	c := jsonnum.New(nil)
	arr := int64Array(1, 2, 3, 4)
	payload := map[string]any{"position": arr}

	frame, err := c.Serialize(payload)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}

	got, err := c.Deserialize(frame)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	gotMap, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("Deserialize() = %T, want map[string]any", got)
	}
	gotArr, ok := gotMap["position"].(*ndarray.Array)
	if !ok {
		t.Fatalf("position = %T, want *ndarray.Array", gotMap["position"])
	}
	if gotArr.Dtype != arr.Dtype || !reflect.DeepEqual(gotArr.Shape, arr.Shape) || !reflect.DeepEqual(gotArr.Data, arr.Data) {
		t.Errorf("round-tripped array = %+v, want %+v", gotArr, arr)
	}
}

func TestCodec_RoundTrip_CompressedArray(t *testing.T) {
	c := jsonnum.New(nil)
	// 200 elements (1600 bytes), well above compressThreshold, and repetitive enough to
	// actually shrink under lz4.
	vals := make([]int64, 200)
	arr := int64Array(vals...)
	payload := map[string]any{"position": arr}

	frame, err := c.Serialize(payload)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	got, err := c.Deserialize(frame)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	gotArr := got.(map[string]any)["position"].(*ndarray.Array)
	if !reflect.DeepEqual(gotArr.Data, arr.Data) {
		t.Errorf("round-tripped compressed array data mismatch: got %v, want %v", gotArr.Data, arr.Data)
	}
}

func TestCodec_RoundTrip_NestedArrays(t *testing.T) {
	c := jsonnum.New(nil)
	payload := map[string]any{
		"time_stamp": 42.0,
		"frontends": []any{
			map[string]any{"position": int64Array(1, 2)},
			map[string]any{"position": int64Array(3, 4)},
		},
	}

	frame, err := c.Serialize(payload)
	if err != nil {
		t.Fatalf("Serialize() error = %v", err)
	}
	got, err := c.Deserialize(frame)
	if err != nil {
		t.Fatalf("Deserialize() error = %v", err)
	}
	gotMap := got.(map[string]any)
	frontends := gotMap["frontends"].([]any)
	if len(frontends) != 2 {
		t.Fatalf("frontends length = %d, want 2", len(frontends))
	}
	for i, f := range frontends {
		arr := f.(map[string]any)["position"].(*ndarray.Array)
		if arr.Dtype != "int64" {
			t.Errorf("frontend %d: dtype = %q, want int64", i, arr.Dtype)
		}
	}
}

func TestCodec_Deserialize_Malformed(t *testing.T) {
	c := jsonnum.New(nil)
	if _, err := c.Deserialize([]byte("{not json")); err == nil {
		t.Error("expected an error for malformed JSON")
	}
}
