// Package ndarray implements the minimal numeric-array value the codecs
// exchange: a dtype string, a shape, and a flat row-major byte buffer. It is
// the Go analog of the numpy arrays the original online monitor passes
// between converters, producers, and receivers.
package ndarray

import (
	"fmt"
)

// Array is a flat, row-major, C-contiguous numeric array.
type Array struct {
	// Dtype is the element type tag, e.g. "int64", "float64", "uint8".
	// Mirrors Python's str(np.dtype) so the wire format round-trips with
	// the original implementation's readers.
	Dtype string

	// Shape is the array dimensions, e.g. []int{100, 100}.
	Shape []int

	// Data is the flat row-major element bytes.
	Data []byte
}

// elemSize returns the byte width of one element of the given dtype, or an
// error if the dtype is not recognized.
func elemSize(dtype string) (int, error) {
	switch dtype {
	case "int8", "uint8", "bool":
		return 1, nil
	case "int16", "uint16":
		return 2, nil
	case "int32", "uint32", "float32":
		return 4, nil
	case "int64", "uint64", "float64":
		return 8, nil
	default:
		return 0, fmt.Errorf("ndarray: unknown dtype %q", dtype)
	}
}

// Len returns the total element count implied by Shape.
func (a *Array) Len() int {
	n := 1
	for _, d := range a.Shape {
		n *= d
	}
	return n
}

// Validate checks that Data's length matches Shape and Dtype (the
// C-contiguous invariant the original NumpyEncoder guarantees via
// np.ascontiguousarray before encoding).
func (a *Array) Validate() error {
	size, err := elemSize(a.Dtype)
	if err != nil {
		return err
	}
	want := a.Len() * size
	if len(a.Data) != want {
		return fmt.Errorf("ndarray: data length %d does not match shape %v dtype %s (want %d)",
			len(a.Data), a.Shape, a.Dtype, want)
	}
	return nil
}

// Contiguous returns a (this implementation is always stored contiguous, so
// it returns a itself; the method exists to document and preserve the
// original's "ensure C-contiguous before encode" step as an explicit,
// checkable operation at the codec boundary).
func (a *Array) Contiguous() (*Array, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	return a, nil
}
