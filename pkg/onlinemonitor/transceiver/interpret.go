package transceiver

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/daqlab/onlinemonitor/internal/telemetry"
	"github.com/daqlab/onlinemonitor/models"
)

// startInterpretLoop launches the single interpret goroutine: on every tick
// it drains whatever has accumulated in the inbox since the previous tick
// and calls Hooks.Interpret exactly once with the batch (I4 — Interpret is
// never called concurrently with itself). Results are serialized and
// published to every backend.
func (t *Transceiver) startInterpretLoop(ctx context.Context) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(t.cfg.InterpretTick)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				t.drainAndInterpret()
				return
			case <-ticker.C:
				t.drainAndInterpret()
			}
		}
	}()
}

func (t *Transceiver) drainAndInterpret() {
	batch := t.drainInbox()
	if len(batch) == 0 && len(t.cfg.Frontends) > 0 {
		return
	}

	// A panicking Interpret drops this batch only; the loop keeps running.
	defer func() {
		if r := recover(); r != nil {
			t.recordInterpretError(fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()

	start := time.Now()
	payloads, err := t.hooks.Interpret.Interpret(batch)
	telemetry.InterpretDuration.WithLabelValues(t.cfg.Name).Observe(time.Since(start).Seconds())
	if err != nil {
		t.recordInterpretError(err)
		return
	}
	t.publish(payloads)
}

func (t *Transceiver) drainInbox() []models.InboundMessage {
	var batch []models.InboundMessage
	for {
		select {
		case msg := <-t.inbox:
			batch = append(batch, msg)
		default:
			return batch
		}
	}
}

func (t *Transceiver) publish(payloads []any) {
	for _, payload := range payloads {
		frame, err := t.cfg.Codec.Serialize(payload)
		if err != nil {
			telemetry.CodecErrorsTotal.WithLabelValues(t.cfg.Name).Inc()
			t.logger.Warn("transceiver: codec encode error", "worker", t.cfg.Name, "error", err.Error())
			continue
		}
		for _, b := range t.backends {
			b.Publish(frame)
		}
		for _, d := range t.backendDealers {
			d.Send(frame)
		}
	}
}
