// Package correlator implements a converter that buffers inbound messages
// across multiple frontends, keyed by each payload's "time_stamp" field, and
// emits a merged record once data for a given time_stamp has arrived from
// every configured frontend. Grounded on
// original_source/online_monitor/converter/correlator.py (the Correlator
// base class, which only enforces "at least two receivers") and
// original_source/examples/converter/position_correlator.py's
// data_buffer-keyed-by-time_stamp approach (the example itself is a debug
// stub in the original; the buffering idea is what this plugin completes).
package correlator

import (
	"fmt"

	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/plugin"
)

const Kind = "correlator"

func init() {
	plugin.Default.Register(Kind, func(cfg models.WorkerConfig) (any, error) {
		if len(cfg.Frontend) < 2 {
			return nil, fmt.Errorf("correlator: %s: a correlator needs at least two frontends", cfg.Name)
		}
		names := make([]string, len(cfg.Frontend))
		for i, ep := range cfg.Frontend {
			if ep.Name != "" {
				names[i] = ep.Name
			} else {
				names[i] = ep.Address
			}
		}
		return New(names), nil
	})
}

// Correlator buffers one payload per frontend per time_stamp and emits the
// merged set once every frontend has reported for that time_stamp.
type Correlator struct {
	frontends []string
	buffer    map[any]map[string]any
}

// New constructs a Correlator expecting data from exactly the given
// frontend names before it will emit a merged record.
func New(frontends []string) *Correlator {
	return &Correlator{
		frontends: frontends,
		buffer:    make(map[any]map[string]any),
	}
}

// Interpret buffers each inbound message under its time_stamp and frontend,
// returning one merged record per time_stamp that has now been filled by
// every frontend.
func (c *Correlator) Interpret(batch []models.InboundMessage) ([]any, error) {
	for _, msg := range batch {
		fields, ok := msg.Payload.(map[string]any)
		if !ok {
			continue
		}
		ts, ok := fields["time_stamp"]
		if !ok {
			continue
		}
		bucket, ok := c.buffer[ts]
		if !ok {
			bucket = make(map[string]any, len(c.frontends))
			c.buffer[ts] = bucket
		}
		bucket[msg.Frontend] = fields
	}

	var out []any
	for ts, bucket := range c.buffer {
		if !c.complete(bucket) {
			continue
		}
		merged := map[string]any{"time_stamp": ts}
		for frontend, fields := range bucket {
			merged[frontend] = fields
		}
		out = append(out, merged)
		delete(c.buffer, ts)
	}
	return out, nil
}

func (c *Correlator) complete(bucket map[string]any) bool {
	for _, name := range c.frontends {
		if _, ok := bucket[name]; !ok {
			return false
		}
	}
	return true
}
