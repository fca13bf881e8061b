package transceiver

import (
	"context"
	"time"

	"github.com/daqlab/onlinemonitor/internal/telemetry"
	"github.com/daqlab/onlinemonitor/models"
)

// startReceiveLoops launches one goroutine per configured frontend. Each
// loop deserializes incoming frames and enqueues them on the shared inbox,
// tagged with the frontend's name so a multi-frontend Interpreter (e.g. the
// position correlator) can tell sources apart. Enqueue is non-blocking: when
// the inbox is at MaxBuffer the message is dropped and counted (I3) — no
// CPU-based shedding is used anywhere in this package.
func (t *Transceiver) startReceiveLoops(ctx context.Context) {
	for i, f := range t.frontends {
		name := frontendName(t.cfg.Frontends, i)
		t.wg.Add(1)
		go t.receiveLoop(ctx, name, f.Receive())
	}
	for i, d := range t.frontendDealers {
		name := frontendName(t.cfg.Frontends, i)
		t.wg.Add(1)
		go t.receiveLoop(ctx, name, d.Receive())
	}
}

func frontendName(endpoints []models.Endpoint, i int) string {
	if i < len(endpoints) && endpoints[i].Name != "" {
		return endpoints[i].Name
	}
	if i < len(endpoints) {
		return endpoints[i].Address
	}
	return "frontend"
}

func (t *Transceiver) receiveLoop(ctx context.Context, name string, frames <-chan []byte) {
	defer t.wg.Done()
	for {
		var frame []byte
		select {
		case <-ctx.Done():
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			frame = f
		}
		payload, err := t.cfg.Codec.Deserialize(frame)
		if err != nil {
			telemetry.CodecErrorsTotal.WithLabelValues(t.cfg.Name).Inc()
			t.logger.Warn("transceiver: codec decode error", "worker", t.cfg.Name, "frontend", name, "error", err.Error())
			continue
		}
		msg := models.InboundMessage{Frontend: name, Received: time.Now(), Payload: payload}
		select {
		case t.inbox <- msg:
		default:
			telemetry.BackpressureDropsTotal.WithLabelValues(t.cfg.Name).Inc()
			t.logger.Warn("transceiver: inbox full — message dropped", "worker", t.cfg.Name, "frontend", name)
		}
	}
}
