// Package displayreceiver implements the default receiver kind: a non-GUI
// sink that stores the most recently handled payload. GUI rendering is out
// of scope (spec.md §1), so this plugin adapts
// original_source/online_monitor/receiver/receiver.py's handle_data/
// refresh_data hook split into something a headless process can observe —
// LastPayload() stands in for what a real GUI widget would paint in
// refresh_data.
package displayreceiver

import (
	"sync"

	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/plugin"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/receiver"
)

const Kind = "displayreceiver"

func init() {
	plugin.Default.Register(Kind, func(cfg models.WorkerConfig) (any, error) {
		return New(), nil
	})
}

// Sink accumulates the last handled payload and a count of refreshes, in
// place of a GUI widget.
type Sink struct {
	mu           sync.Mutex
	lastPayload  any
	refreshCount int
	handledCount int
}

var _ receiver.Handler = (*Sink)(nil)

// New constructs a Sink.
func New() *Sink { return &Sink{} }

// Handle stores payload as the most recently received value (the original's
// handle_data, called only while the receiver is active).
func (s *Sink) Handle(payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPayload = payload
	s.handledCount++
}

// Refresh records that a refresh tick occurred (where a GUI would repaint).
func (s *Sink) Refresh() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCount++
}

// LastPayload returns the most recently handled payload, or nil if none has
// arrived yet.
func (s *Sink) LastPayload() any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPayload
}

// Counts returns the number of Handle and Refresh calls observed so far.
func (s *Sink) Counts() (handled, refreshed int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handledCount, s.refreshCount
}
