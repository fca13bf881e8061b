// Package forwarder implements the simplest converter kind: it forwards
// every inbound payload unchanged, one outbound message per inbound one.
// Grounded on original_source/online_monitor/converter/forwarder.py's
// interpret_data, which does exactly this ("a forwarder just forwards data;
// no interpretation").
package forwarder

import (
	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/plugin"
)

const Kind = "forwarder"

func init() {
	plugin.Default.Register(Kind, func(cfg models.WorkerConfig) (any, error) {
		return New(), nil
	})
}

// Forwarder is a transceiver.Interpreter that passes each inbound payload
// through unchanged.
type Forwarder struct{}

// New constructs a Forwarder.
func New() *Forwarder { return &Forwarder{} }

// Interpret returns one outbound payload per inbound message, unchanged.
func (f *Forwarder) Interpret(batch []models.InboundMessage) ([]any, error) {
	out := make([]any, len(batch))
	for i, msg := range batch {
		out[i] = msg.Payload
	}
	return out, nil
}
