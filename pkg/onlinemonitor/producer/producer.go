// Package producer implements C3: a Transceiver specialization with no
// frontends. On a fixed period it pulls the next payload from a DataSource
// and publishes it to every configured backend, exactly mirroring
// online_monitor's producer_sim role (e.g.
// original_source/examples/producer_sim/example_producer_sim.py's
// send_data()).
package producer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/transceiver"
)

// defaultPeriod is used when Config.Period is zero.
const defaultPeriod = 100 * time.Millisecond

// DataSource supplies the payloads a Producer emits, one per tick. Next
// returns (nil, nil) to emit nothing on a given tick.
type DataSource interface {
	Next(ctx context.Context) (any, error)
}

// DataSourceFunc adapts a plain function to DataSource.
type DataSourceFunc func(ctx context.Context) (any, error)

func (f DataSourceFunc) Next(ctx context.Context) (any, error) { return f(ctx) }

// Config describes a Producer's wiring.
type Config struct {
	Name      string
	Backends  []models.Endpoint
	MaxBuffer int
	Period    time.Duration
}

// New constructs a Producer backed by source. The returned *transceiver.Transceiver
// runs source.Next once per Period and publishes whatever it returns (skipping
// nil payloads) — the period itself is implemented as the Transceiver's
// InterpretTick, with an Interpreter that ignores its (always-empty) inbound
// batch and calls source.Next instead.
func New(cfg Config, source DataSource, logger *slog.Logger) (*transceiver.Transceiver, error) {
	if source == nil {
		return nil, fmt.Errorf("producer: %s: DataSource is required", cfg.Name)
	}
	period := cfg.Period
	if period <= 0 {
		period = defaultPeriod
	}

	tcfg := transceiver.Config{
		Name:          cfg.Name,
		Backends:      cfg.Backends,
		MaxBuffer:     cfg.MaxBuffer,
		InterpretTick: period,
	}

	interp := transceiver.InterpreterFunc(func(_ []models.InboundMessage) ([]any, error) {
		payload, err := source.Next(context.Background())
		if err != nil {
			return nil, err
		}
		if payload == nil {
			return nil, nil
		}
		return []any{payload}, nil
	})

	return transceiver.New(tcfg, transceiver.Hooks{Interpret: interp}, logger)
}
