package producer_test

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/producer"
	"github.com/daqlab/onlinemonitor/transport/socket"
)

func inprocAddr(label string) string {
	return fmt.Sprintf("inproc://%s-%d", label, time.Now().UnixNano())
}

func TestProducer_EmitsOnEveryTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := inprocAddr("producer")

	var n atomic.Int64
	source := producer.DataSourceFunc(func(context.Context) (any, error) {
		return map[string]any{"n": n.Add(1)}, nil
	})

	tr, err := producer.New(producer.Config{
		Name:     "testproducer",
		Backends: []models.Endpoint{{Address: addr}},
		Period:   5 * time.Millisecond,
	}, source, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tr.Stop()

	sub, err := socket.Connect(ctx, addr, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sub.Close()

	received := 0
	timeout := time.After(2 * time.Second)
	for received < 3 {
		select {
		case <-sub.Receive():
			received++
		case <-timeout:
			t.Fatalf("timed out after receiving %d/3 frames", received)
		}
	}
}

func TestProducer_SkipsNilPayload(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	addr := inprocAddr("producer-skip")

	var calls atomic.Int64
	source := producer.DataSourceFunc(func(context.Context) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	tr, err := producer.New(producer.Config{
		Name:     "skipper",
		Backends: []models.Endpoint{{Address: addr}},
		Period:   2 * time.Millisecond,
	}, source, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer tr.Stop()

	sub, err := socket.Connect(ctx, addr, nil)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer sub.Close()

	time.Sleep(50 * time.Millisecond)
	select {
	case frame := <-sub.Receive():
		t.Fatalf("expected no published frame, got %s", frame)
	default:
	}
	if calls.Load() == 0 {
		t.Error("DataSource.Next was never called")
	}
}

func TestProducer_RequiresDataSource(t *testing.T) {
	_, err := producer.New(producer.Config{Name: "nosource"}, nil, nil)
	if err == nil {
		t.Error("expected an error when DataSource is nil")
	}
}
