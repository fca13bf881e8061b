package receiver_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/receiver"
	"github.com/daqlab/onlinemonitor/transport/socket"
)

func inprocAddr(label string) string {
	return fmt.Sprintf("inproc://%s-%d", label, time.Now().UnixNano())
}

// recordingHandler is a receiver.Handler that records every Handle/Refresh
// call it observes.
type recordingHandler struct {
	mu       sync.Mutex
	payloads []any
	refreshN int
}

func (h *recordingHandler) Handle(payload any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, payload)
}

func (h *recordingHandler) Refresh() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.refreshN++
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.payloads)
}

func TestReceiver_HandlesOnlyWhenActive(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := inprocAddr("rx")
	backend, err := socket.Bind(ctx, addr, nil)
	if err != nil {
		t.Fatalf("Bind() error = %v", err)
	}
	defer backend.Close()

	handler := &recordingHandler{}
	rx, err := receiver.New(receiver.Config{Name: "rx", Frontend: models.Endpoint{Address: addr}}, handler, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := rx.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer rx.Stop()

	time.Sleep(20 * time.Millisecond)
	backend.Publish([]byte(`{"v":1}`))
	time.Sleep(20 * time.Millisecond)
	if handler.count() != 0 {
		t.Errorf("handler should not have been called while inactive, got %d calls", handler.count())
	}

	rx.SetActive(true)
	backend.Publish([]byte(`{"v":2}`))

	deadline := time.After(2 * time.Second)
	for handler.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for handler to be called once active")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestReceiver_SendCommandRequiresBidirectional(t *testing.T) {
	rx, err := receiver.New(receiver.Config{Name: "rx"}, &recordingHandler{}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := rx.SendCommand(models.Command{Kind: "threshold", Value: 5}); err == nil {
		t.Error("expected an error sending a command over a non-bidirectional receiver")
	}
}

func TestReceiver_BidirectionalRoundTrip(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := inprocAddr("rx-bidi")
	dealer, err := socket.DealerBind(ctx, addr, nil)
	if err != nil {
		t.Fatalf("DealerBind() error = %v", err)
	}
	defer dealer.Close()

	handler := &recordingHandler{}
	rx, err := receiver.New(receiver.Config{
		Name:          "rx-bidi",
		Frontend:      models.Endpoint{Address: addr},
		Bidirectional: true,
	}, handler, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := rx.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer rx.Stop()
	rx.SetActive(true)

	if err := rx.SendCommand(models.Command{Kind: "threshold", Value: 5.0}); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	select {
	case frame := <-dealer.Receive():
		if string(frame) != `{"kind":"threshold","value":5}` {
			t.Errorf("received command frame = %s", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command frame at the dealer peer")
	}
}
