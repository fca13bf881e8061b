package transceiver

import (
	"context"
	"encoding/json"

	"github.com/daqlab/onlinemonitor/models"
)

// startCommandLoop launches one goroutine per backend DEALER connection that
// decodes incoming frames as models.Command and calls Hooks.HandleCommand.
// Commands only ever arrive on a backend DEALER (spec.md §5): a frontend
// DEALER connects upstream and carries data inbound, exactly like a PUB/SUB
// frontend does — it is startReceiveLoops' job, not this one's. Attaching
// this loop to frontendDealers too would race receiveLoop for the same
// frames and silently steal half the inbound data.
func (t *Transceiver) startCommandLoop(ctx context.Context) {
	for _, d := range t.backendDealers {
		t.wg.Add(1)
		go t.commandLoop(ctx, d.Receive())
	}
}

func (t *Transceiver) commandLoop(ctx context.Context, frames <-chan []byte) {
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
		var cmd models.Command
		if err := json.Unmarshal(frame, &cmd); err != nil {
			t.logger.Warn("transceiver: command decode error", "worker", t.cfg.Name, "error", err.Error())
			continue
		}
		if err := t.hooks.HandleCommand.HandleCommand(cmd); err != nil {
			t.logger.Warn("transceiver: command handler error", "worker", t.cfg.Name, "error", err.Error())
		}
	}
}

// SendCommand delivers cmd to every DEALER peer this Transceiver is
// connected to. Used by a Transceiver that itself needs to issue a reverse
// command upstream (the common case — a Receiver sending a command down to
// its converter — goes through receiver.Receiver.SendCommand instead).
func (t *Transceiver) SendCommand(cmd models.Command) error {
	frame, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	for _, d := range t.frontendDealers {
		d.Send(frame)
	}
	for _, d := range t.backendDealers {
		d.Send(frame)
	}
	return nil
}
