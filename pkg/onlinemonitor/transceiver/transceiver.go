// Package transceiver implements the core worker runtime (C2): a per-entity
// pipeline stage that receives from zero or more frontends, interprets
// accumulated batches on a fixed tick, and publishes results to zero or more
// backends. Hooks (not inheritance) supply the entity-specific behavior —
// Setup, Interpret, and an optional command handler for bidirectional
// workers. A Producer (pkg/onlinemonitor/producer) is a Transceiver
// configured with no frontends; a Receiver (pkg/onlinemonitor/receiver)
// mirrors the receiving half on the consumption side.
package transceiver

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daqlab/onlinemonitor/codec"
	"github.com/daqlab/onlinemonitor/codec/jsonnum"
	daqerrors "github.com/daqlab/onlinemonitor/pkg/onlinemonitor/errors"
	"github.com/daqlab/onlinemonitor/internal/telemetry"
	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/transport/socket"
)

// defaultMaxBuffer bounds the inbound queue when Config.MaxBuffer is zero.
const defaultMaxBuffer = 10

// defaultInterpretTick is the interpret loop cadence when
// Config.InterpretTick is zero.
const defaultInterpretTick = 10 * time.Millisecond

// Interpreter is the required hook: it converts a batch of inbound messages
// accumulated since the last tick into zero or more outbound payloads. It is
// called from a single goroutine only (I4) — implementations need no locking
// around their own state.
type Interpreter interface {
	Interpret(batch []models.InboundMessage) ([]any, error)
}

// InterpreterFunc adapts a plain function to the Interpreter interface.
type InterpreterFunc func(batch []models.InboundMessage) ([]any, error)

func (f InterpreterFunc) Interpret(batch []models.InboundMessage) ([]any, error) { return f(batch) }

// CommandHandler is the optional hook for bidirectional workers: it is
// invoked once per command arriving on the reverse channel.
type CommandHandler interface {
	HandleCommand(cmd models.Command) error
}

// Config describes the wiring and timing for one Transceiver instance.
type Config struct {
	Name          string
	Frontends     []models.Endpoint
	Backends      []models.Endpoint
	Bidirectional bool
	MaxBuffer     int
	Codec         codec.Codec // default: jsonnum.New(nil)
	InterpretTick time.Duration
}

func (c *Config) withDefaults() {
	if c.MaxBuffer <= 0 {
		c.MaxBuffer = defaultMaxBuffer
	}
	if c.Codec == nil {
		c.Codec = jsonnum.New(nil)
	}
	if c.InterpretTick <= 0 {
		c.InterpretTick = defaultInterpretTick
	}
}

// Hooks bundles the entity-specific behavior a plugin supplies. This is a
// capability bundle, not a base class: a Transceiver holds a Hooks value and
// calls through it; there is no inheritance anywhere in this package.
type Hooks struct {
	// Setup runs once before the receive/interpret/command goroutines
	// start. May be nil.
	Setup func(ctx context.Context) error

	// Interpret is required.
	Interpret Interpreter

	// HandleCommand is required iff Config.Bidirectional is true.
	HandleCommand CommandHandler
}

// Transceiver is a single pipeline worker. Construct with New, start with
// Start, and stop with Stop. State transitions are monotone
// (Constructed -> Running -> Stopping -> Stopped, I1).
type Transceiver struct {
	cfg    Config
	hooks  Hooks
	logger *slog.Logger

	mu    sync.Mutex
	state models.RunState

	// Non-bidirectional wiring.
	frontends []*socket.Frontend
	backends  []*socket.Backend

	// Bidirectional wiring (DEALER both ends, spec.md §9).
	frontendDealers []*socket.Dealer
	backendDealers  []*socket.Dealer

	inbox chan models.InboundMessage

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Transceiver. It does not connect or bind anything until
// Start is called.
func New(cfg Config, hooks Hooks, logger *slog.Logger) (*Transceiver, error) {
	if hooks.Interpret == nil {
		return nil, fmt.Errorf("transceiver: %s: Hooks.Interpret is required", cfg.Name)
	}
	if cfg.Bidirectional && hooks.HandleCommand == nil {
		return nil, fmt.Errorf("transceiver: %s: Hooks.HandleCommand is required for a bidirectional worker", cfg.Name)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &Transceiver{
		cfg:    cfg,
		hooks:  hooks,
		logger: logger,
		state:  models.StateConstructed,
		inbox:  make(chan models.InboundMessage, cfg.MaxBuffer),
	}, nil
}

// Name returns the worker's configured name.
func (t *Transceiver) Name() string { return t.cfg.Name }

// State returns the current lifecycle state.
func (t *Transceiver) State() models.RunState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Transceiver) transition(next models.RunState) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.state.CanTransition(next) {
		return fmt.Errorf("transceiver: %s: illegal transition %s -> %s", t.cfg.Name, t.state, next)
	}
	t.state = next
	return nil
}

// Start connects/binds all configured endpoints and launches the receive,
// interpret, and (when Bidirectional) command goroutines.
func (t *Transceiver) Start(ctx context.Context) error {
	if err := t.transition(models.StateRunning); err != nil {
		return err
	}

	if t.hooks.Setup != nil {
		if err := t.hooks.Setup(ctx); err != nil {
			return fmt.Errorf("transceiver: %s: setup: %w", t.cfg.Name, err)
		}
	}

	runCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel

	if err := t.wireBackends(runCtx); err != nil {
		cancel()
		return err
	}
	if err := t.wireFrontends(runCtx); err != nil {
		cancel()
		return err
	}

	t.startReceiveLoops(runCtx)
	t.startInterpretLoop(runCtx)
	if t.cfg.Bidirectional {
		t.startCommandLoop(runCtx)
	}

	t.logger.Info("transceiver: started", "worker", t.cfg.Name,
		"frontends", len(t.cfg.Frontends), "backends", len(t.cfg.Backends),
		"bidirectional", t.cfg.Bidirectional)
	return nil
}

func (t *Transceiver) wireBackends(ctx context.Context) error {
	for _, ep := range t.cfg.Backends {
		if t.cfg.Bidirectional {
			d, err := socket.DealerBind(ctx, ep.Address, t.logger)
			if err != nil {
				return daqerrors.New(daqerrors.KindFatalTransport, t.cfg.Name, "bind backend "+ep.Address, err)
			}
			t.backendDealers = append(t.backendDealers, d)
		} else {
			b, err := socket.Bind(ctx, ep.Address, t.logger)
			if err != nil {
				return daqerrors.New(daqerrors.KindFatalTransport, t.cfg.Name, "bind backend "+ep.Address, err)
			}
			t.backends = append(t.backends, b)
		}
	}
	return nil
}

func (t *Transceiver) wireFrontends(ctx context.Context) error {
	for _, ep := range t.cfg.Frontends {
		if t.cfg.Bidirectional {
			d, err := socket.DealerConnect(ctx, ep.Address, t.logger)
			if err != nil {
				return daqerrors.New(daqerrors.KindFatalTransport, t.cfg.Name, "connect frontend "+ep.Address, err)
			}
			t.frontendDealers = append(t.frontendDealers, d)
		} else {
			f, err := socket.Connect(ctx, ep.Address, t.logger)
			if err != nil {
				return daqerrors.New(daqerrors.KindFatalTransport, t.cfg.Name, "connect frontend "+ep.Address, err)
			}
			t.frontends = append(t.frontends, f)
		}
	}
	return nil
}

// Stop performs a graceful shutdown: cancel the run context, wait for the
// receive/interpret/command goroutines to drain, then close every socket.
// Shutdown order matches app.App: frontends close first (stop intake), then
// backends, per spec.md §5's fixed ordering.
func (t *Transceiver) Stop() {
	if err := t.transition(models.StateStopping); err != nil {
		t.logger.Debug("transceiver: stop called from unexpected state", "worker", t.cfg.Name, "error", err.Error())
		return
	}
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()

	for _, f := range t.frontends {
		_ = f.Close()
	}
	for _, d := range t.frontendDealers {
		_ = d.Close()
	}
	time.Sleep(socket.Linger)
	for _, b := range t.backends {
		_ = b.Close()
	}
	for _, d := range t.backendDealers {
		_ = d.Close()
	}

	_ = t.transition(models.StateStopped)
	t.logger.Info("transceiver: stopped", "worker", t.cfg.Name)
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }

// recordInterpretError counts and logs a failed (erroring or panicking)
// Interpret call; used by interpret.go.
func (t *Transceiver) recordInterpretError(err error) {
	telemetry.InterpretErrorsTotal.WithLabelValues(t.cfg.Name).Inc()
	t.logger.Warn("transceiver: interpret error", "worker", t.cfg.Name, "error", err.Error())
}
