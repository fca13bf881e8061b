// Package syntheticproducer implements the default producer kind: it emits a
// random 100x100 int64 array every tick, matching
// original_source/examples/producer_sim/example_producer_sim.py's
// send_data (np.random.randint(0, 10, 100*100).reshape((100, 100))).
package syntheticproducer

import (
	"context"
	"encoding/binary"
	"math/rand"

	"github.com/daqlab/onlinemonitor/codec/ndarray"
	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/plugin"
)

const Kind = "syntheticproducer"

// Dims matches the original's fixed 100x100 shape.
var Dims = [2]int{100, 100}

func init() {
	plugin.Default.Register(Kind, func(cfg models.WorkerConfig) (any, error) {
		return New(), nil
	})
}

// Source generates a random int64 array payload per Next call.
type Source struct {
	rng *rand.Rand
}

// New constructs a Source.
func New() *Source {
	return &Source{rng: rand.New(rand.NewSource(1))}
}

// Next returns a single map payload with a "position" ndarray, matching the
// original's {'position': np.random.randint(0, 10, 100*100).reshape(...)}.
func (s *Source) Next(_ context.Context) (any, error) {
	n := Dims[0] * Dims[1]
	data := make([]byte, n*8)
	for i := 0; i < n; i++ {
		v := int64(s.rng.Intn(10))
		binary.LittleEndian.PutUint64(data[i*8:(i+1)*8], uint64(v))
	}
	arr := &ndarray.Array{Dtype: "int64", Shape: []int{Dims[0], Dims[1]}, Data: data}
	return map[string]any{"position": arr}, nil
}
