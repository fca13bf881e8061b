// Package receiver implements C5: the consumption-side mirror of a
// Transceiver. A Receiver connects to a single frontend, optionally over a
// DEALER connection so it can send reverse commands, and delivers decoded
// payloads on a channel gated by an active flag and a configurable refresh
// rate — behavior reverse-engineered directly from
// original_source/online_monitor/receiver/receiver.py (refresh_rate property,
// handle_data_if_active, send_command/_cmd_queue, active() slot).
package receiver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daqlab/onlinemonitor/codec"
	"github.com/daqlab/onlinemonitor/codec/jsonnum"
	"github.com/daqlab/onlinemonitor/internal/telemetry"
	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/transport/socket"
)

// Config describes a Receiver's wiring.
type Config struct {
	Name          string
	Frontend      models.Endpoint
	Bidirectional bool
	Codec         codec.Codec // default: jsonnum.New(nil)
}

func (c *Config) withDefaults() {
	if c.Codec == nil {
		c.Codec = jsonnum.New(nil)
	}
}

// Receiver connects to a single upstream Transceiver backend and delivers
// decoded payloads to a Handler when active.
type Receiver struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.Mutex
	active bool
	// refreshRate: 0 stops refreshing (messages are still handled, but
	// Refresh is never called);
	// nil-equivalent "none" means refresh immediately on every message
	// (represented by refreshNone); a positive value is a Hz rate driving
	// refreshTimer.
	refreshHz   float64
	refreshNone bool

	frontend *socket.Frontend
	dealer   *socket.Dealer

	data    chan models.InboundMessage
	handler Handler

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Handler receives a payload when the Receiver is active. It mirrors the
// original's handle_data/refresh_data split: Handle is called once per
// accepted message, Refresh is called on the configured cadence (or
// immediately after Handle, when refresh rate is "none").
type Handler interface {
	Handle(payload any)
	Refresh()
}

// New constructs a Receiver. Call Start to connect.
func New(cfg Config, handler Handler, logger *slog.Logger) (*Receiver, error) {
	if handler == nil {
		return nil, fmt.Errorf("receiver: %s: Handler is required", cfg.Name)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &Receiver{
		cfg:         cfg,
		logger:      logger,
		handler:     handler,
		refreshNone: true,
		data:        make(chan models.InboundMessage, socket.HWM),
	}, nil
}

// Start connects to the configured frontend and begins delivering data.
func (r *Receiver) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	if r.cfg.Bidirectional {
		d, err := socket.DealerConnect(runCtx, r.cfg.Frontend.Address, r.logger)
		if err != nil {
			cancel()
			return fmt.Errorf("receiver: %s: connect: %w", r.cfg.Name, err)
		}
		r.dealer = d
		r.wg.Add(1)
		go r.receiveLoop(runCtx, d.Receive())
	} else {
		f, err := socket.Connect(runCtx, r.cfg.Frontend.Address, r.logger)
		if err != nil {
			cancel()
			return fmt.Errorf("receiver: %s: connect: %w", r.cfg.Name, err)
		}
		r.frontend = f
		r.wg.Add(1)
		go r.receiveLoop(runCtx, f.Receive())
	}

	r.wg.Add(1)
	go r.dispatchLoop(runCtx)

	r.logger.Info("receiver: started", "worker", r.cfg.Name, "frontend", r.cfg.Frontend.Address)
	return nil
}

// Stop disconnects the Receiver. Safe to call multiple times.
func (r *Receiver) Stop() {
	r.closeOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		if r.frontend != nil {
			_ = r.frontend.Close()
		}
		if r.dealer != nil {
			_ = r.dealer.Close()
		}
		r.wg.Wait()
		r.logger.Info("receiver: stopped", "worker", r.cfg.Name)
	})
}

func (r *Receiver) receiveLoop(ctx context.Context, frames <-chan []byte) {
	defer r.wg.Done()
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
		payload, err := r.cfg.Codec.Deserialize(frame)
		if err != nil {
			telemetry.CodecErrorsTotal.WithLabelValues(r.cfg.Name).Inc()
			r.logger.Warn("receiver: codec decode error", "worker", r.cfg.Name, "error", err.Error())
			continue
		}
		msg := models.InboundMessage{Frontend: r.cfg.Name, Received: time.Now(), Payload: payload}
		select {
		case r.data <- msg:
		default:
			telemetry.BackpressureDropsTotal.WithLabelValues(r.cfg.Name).Inc()
			r.logger.Warn("receiver: buffer full — message dropped", "worker", r.cfg.Name)
		}
	}
}

// dispatchLoop mirrors handle_data_if_active: every message is handled only
// while Active; when RefreshRate is "none" Refresh runs immediately after
// Handle, otherwise a separate ticker drives Refresh on its own cadence.
func (r *Receiver) dispatchLoop(ctx context.Context) {
	defer r.wg.Done()

	var ticker *time.Ticker
	var tickCh <-chan time.Time
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		r.mu.Lock()
		hz, none := r.refreshHz, r.refreshNone
		r.mu.Unlock()
		if !none && hz > 0 {
			if ticker == nil {
				ticker = time.NewTicker(time.Duration(float64(time.Second) / hz))
				tickCh = ticker.C
			}
		} else if ticker != nil {
			ticker.Stop()
			ticker = nil
			tickCh = nil
		}

		select {
		case <-ctx.Done():
			return
		case msg, ok := <-r.data:
			if !ok {
				return
			}
			r.mu.Lock()
			active := r.active
			none := r.refreshNone
			r.mu.Unlock()
			if !active {
				continue
			}
			r.handler.Handle(msg.Payload)
			if none {
				r.handler.Refresh()
			}
		case <-tickCh:
			r.mu.Lock()
			active := r.active
			r.mu.Unlock()
			if active {
				r.handler.Refresh()
			}
		}
	}
}

// SetActive gates whether received data reaches the Handler (the original's
// active() slot, toggled when a GUI tab becomes foregrounded — here exposed
// as a plain setter since GUI rendering is out of scope).
func (r *Receiver) SetActive(active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = active
}

// SetRefreshRate sets the plot/consumer refresh cadence in Hz. A rate of 0
// stops refreshing entirely (data keeps arriving but is never handed to
// Refresh beyond the Handle call); refreshNone=true (the mode New starts in)
// means "refresh immediately after every handled message" — matching the
// original's refresh_rate=None default ("go as fast as data").
func (r *Receiver) SetRefreshRate(hz float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshNone = false
	r.refreshHz = hz
}

// SetRefreshImmediate restores the "refresh after every message" mode.
func (r *Receiver) SetRefreshImmediate() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refreshNone = true
	r.refreshHz = 0
}

// SendCommand delivers cmd to the upstream Transceiver over the DEALER
// connection. Requires Config.Bidirectional.
func (r *Receiver) SendCommand(cmd models.Command) error {
	if r.dealer == nil {
		return fmt.Errorf("receiver: %s: SendCommand requires a bidirectional connection", r.cfg.Name)
	}
	frame, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	r.dealer.Send(frame)
	return nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
