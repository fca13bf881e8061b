package ndarray_test

import (
	"testing"

	"github.com/daqlab/onlinemonitor/codec/ndarray"
)

func TestArray_Len(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		want  int
	}{
		{"scalar-ish 1x1", []int{1, 1}, 1},
		{"100x100", []int{100, 100}, 10000},
		{"1-d", []int{7}, 7},
		{"empty shape", nil, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &ndarray.Array{Shape: tt.shape}
			if got := a.Len(); got != tt.want {
				t.Errorf("Len() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestArray_Validate(t *testing.T) {
	tests := []struct {
		name    string
		a       ndarray.Array
		wantErr bool
	}{
		{"int64 2x2 ok", ndarray.Array{Dtype: "int64", Shape: []int{2, 2}, Data: make([]byte, 32)}, false},
		{"float32 3 ok", ndarray.Array{Dtype: "float32", Shape: []int{3}, Data: make([]byte, 12)}, false},
		{"uint8 ok", ndarray.Array{Dtype: "uint8", Shape: []int{4}, Data: make([]byte, 4)}, false},
		{"unknown dtype", ndarray.Array{Dtype: "complex128", Shape: []int{1}, Data: make([]byte, 16)}, true},
		{"short data", ndarray.Array{Dtype: "int64", Shape: []int{2, 2}, Data: make([]byte, 16)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.a.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestArray_Contiguous(t *testing.T) {
	a := &ndarray.Array{Dtype: "int64", Shape: []int{2}, Data: make([]byte, 16)}
	got, err := a.Contiguous()
	if err != nil {
		t.Fatalf("Contiguous() error = %v", err)
	}
	if got != a {
		t.Error("Contiguous() should return the same array when already valid")
	}

	bad := &ndarray.Array{Dtype: "int64", Shape: []int{2}, Data: make([]byte, 3)}
	if _, err := bad.Contiguous(); err == nil {
		t.Error("Contiguous() on invalid array should error")
	}
}
