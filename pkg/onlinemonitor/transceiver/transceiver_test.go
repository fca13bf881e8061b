package transceiver_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/daqlab/onlinemonitor/internal/telemetry"
	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/transceiver"
	"github.com/daqlab/onlinemonitor/transport/socket"
)

// inprocAddr returns a unique inproc:// address per test, so package-level
// registries (and telemetry counters keyed by worker name) don't collide
// between tests running in the same process.
func inprocAddr(t *testing.T, label string) string {
	t.Helper()
	return fmt.Sprintf("inproc://%s-%d", label, time.Now().UnixNano())
}

func echoInterpreter() transceiver.InterpreterFunc {
	return func(batch []models.InboundMessage) ([]any, error) {
		out := make([]any, len(batch))
		for i, msg := range batch {
			out[i] = msg.Payload
		}
		return out, nil
	}
}

// TestTransceiver_ForwardsPublishedFrames exercises P1 (every declared
// endpoint is bound/connecting once Start returns) end-to-end over the
// inproc transport: a message published upstream of the Transceiver's
// frontend must arrive, forwarded unchanged, on its backend.
func TestTransceiver_ForwardsPublishedFrames(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	up := inprocAddr(t, "up")
	down := inprocAddr(t, "down")

	upstream, err := socket.Bind(ctx, up, nil)
	if err != nil {
		t.Fatalf("Bind(upstream) error = %v", err)
	}
	defer upstream.Close()

	tr, err := transceiver.New(transceiver.Config{
		Name:          "echo",
		Frontends:     []models.Endpoint{{Address: up}},
		Backends:      []models.Endpoint{{Address: down}},
		InterpretTick: 5 * time.Millisecond,
	}, transceiver.Hooks{Interpret: echoInterpreter()}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tr.Stop()

	downstream, err := socket.Connect(ctx, down, nil)
	if err != nil {
		t.Fatalf("Connect(downstream) error = %v", err)
	}
	defer downstream.Close()

	// Give the downstream subscriber time to register before publishing —
	// Publish only fans out to already-connected subscribers.
	time.Sleep(20 * time.Millisecond)
	upstream.Publish([]byte(`{"status":"ok"}`))

	select {
	case frame := <-downstream.Receive():
		if string(frame) != `{"status":"ok"}` {
			t.Errorf("received frame = %s, want %s", frame, `{"status":"ok"}`)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for forwarded frame")
	}
}

// TestTransceiver_StopReleasesEverything exercises P3: after Stop returns,
// the Transceiver's sockets are closed and its state reflects Stopped.
func TestTransceiver_StopReleasesEverything(t *testing.T) {
	ctx := context.Background()
	down := inprocAddr(t, "down")

	tr, err := transceiver.New(transceiver.Config{
		Name:          "stopper",
		Backends:      []models.Endpoint{{Address: down}},
		InterpretTick: 5 * time.Millisecond,
	}, transceiver.Hooks{Interpret: echoInterpreter()}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if got := tr.State(); got != models.StateRunning {
		t.Fatalf("State() after Start = %v, want Running", got)
	}

	done := make(chan struct{})
	go func() {
		tr.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Stop() did not return in time")
	}

	if got := tr.State(); got != models.StateStopped {
		t.Errorf("State() after Stop = %v, want Stopped", got)
	}

	// A Backend bound to the same inproc name should be bindable again now
	// that the previous one released it.
	again, err := socket.Bind(context.Background(), down, nil)
	if err != nil {
		t.Fatalf("Bind() after Stop should succeed, got error = %v", err)
	}
	_ = again.Close()
}

// TestTransceiver_SingleFlightInterpret exercises P4: Interpret is never
// invoked concurrently with itself, even while messages keep arriving.
func TestTransceiver_SingleFlightInterpret(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	up := inprocAddr(t, "up")
	upstream, err := socket.Bind(ctx, up, nil)
	if err != nil {
		t.Fatalf("Bind(upstream) error = %v", err)
	}
	defer upstream.Close()

	var inFlight atomic.Int32
	var violated atomic.Bool
	interp := transceiver.InterpreterFunc(func(batch []models.InboundMessage) ([]any, error) {
		if inFlight.Add(1) > 1 {
			violated.Store(true)
		}
		time.Sleep(2 * time.Millisecond)
		inFlight.Add(-1)
		return nil, nil
	})

	tr, err := transceiver.New(transceiver.Config{
		Name:          "singleflight",
		Frontends:     []models.Endpoint{{Address: up}},
		InterpretTick: time.Millisecond,
	}, transceiver.Hooks{Interpret: interp}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tr.Stop()

	for i := 0; i < 50; i++ {
		upstream.Publish([]byte(`1`))
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	if violated.Load() {
		t.Error("Interpret was invoked concurrently with itself")
	}
}

// TestTransceiver_BackpressureDropsExcess exercises P2/S5: with a small
// MaxBuffer and a flood of inbound frames faster than Interpret can drain
// them, excess frames are dropped and counted rather than queued unbounded.
func TestTransceiver_BackpressureDropsExcess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	up := inprocAddr(t, "up")
	upstream, err := socket.Bind(ctx, up, nil)
	if err != nil {
		t.Fatalf("Bind(upstream) error = %v", err)
	}
	defer upstream.Close()

	const workerName = "floodtest"
	before := testutil.ToFloat64(telemetry.BackpressureDropsTotal.WithLabelValues(workerName))

	block := make(chan struct{})
	interp := transceiver.InterpreterFunc(func(batch []models.InboundMessage) ([]any, error) {
		<-block // never drains, so the inbox fills and stays full
		return nil, nil
	})

	tr, err := transceiver.New(transceiver.Config{
		Name:          workerName,
		Frontends:     []models.Endpoint{{Address: up}},
		MaxBuffer:     4,
		InterpretTick: time.Millisecond,
	}, transceiver.Hooks{Interpret: interp}, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer func() {
		close(block)
		tr.Stop()
	}()

	for i := 0; i < 100; i++ {
		upstream.Publish([]byte(`1`))
	}
	time.Sleep(100 * time.Millisecond)

	after := testutil.ToFloat64(telemetry.BackpressureDropsTotal.WithLabelValues(workerName))
	if after <= before {
		t.Errorf("BackpressureDropsTotal did not increase: before=%v after=%v", before, after)
	}
}
