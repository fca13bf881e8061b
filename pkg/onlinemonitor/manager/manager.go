// Package manager implements C4: it parses a pipeline's YAML configuration,
// resolves each entity's kind through the plugin registry, and supervises
// one running worker per entity. Generalizes app.App's Config.withDefaults /
// New / Start / Stop / Reload shape from a fixed five-stage SNMP pipeline to
// a dynamic, per-entity worker set with no auto-restart (spec.md §4.4).
package manager

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/daqlab/onlinemonitor/internal/telemetry"
	"github.com/daqlab/onlinemonitor/models"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/config"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/plugin"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/producer"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/receiver"
	"github.com/daqlab/onlinemonitor/pkg/onlinemonitor/transceiver"
)

// Config holds the top-level settings for a Manager.
type Config struct {
	// ConfigDir is the directory of pipeline YAML files.
	ConfigDir string

	// Registry resolves each entity's kind to a plugin factory.
	// Defaults to plugin.Default.
	Registry *plugin.Registry

	// LivenessInterval controls how often the running-worker gauge is
	// sampled. Default: 1s.
	LivenessInterval time.Duration

	// Tiers restricts which entity tiers this Manager starts — any subset
	// of "producer_sim", "converter", "receiver". Empty means all three.
	// The single-tier CLI subcommands (start-producer, start-converter,
	// which start-all spawns as child processes) each run just their own
	// tier out of the same pipeline configuration.
	Tiers []string
}

func (c *Config) withDefaults() {
	if c.Registry == nil {
		c.Registry = plugin.Default
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = time.Second
	}
}

func (c *Config) runs(tier string) bool {
	if len(c.Tiers) == 0 {
		return true
	}
	for _, t := range c.Tiers {
		if t == tier {
			return true
		}
	}
	return false
}

// worker is anything the Manager can Start/Stop as a unit.
type worker interface {
	Start(ctx context.Context) error
	Stop()
}

// Manager supervises the full set of producers, converters, and receivers
// described by a pipeline configuration.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.Mutex
	workers []worker
	names   []string

	loaded *models.PipelineConfig

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. Call Start to load configuration and launch
// every entity.
func New(cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	cfg.withDefaults()
	return &Manager{cfg: cfg, logger: logger}
}

// Start loads the pipeline configuration and starts one worker per entity.
// Failing to load the configuration itself is fatal — there is nothing to
// run. But a single entity failing to resolve or start is not: spec.md §7.1
// requires the Manager to log the offending entity and keep starting the
// rest of the pipeline, rather than tearing the whole thing down over one
// bad entity. There is still no auto-restart once a worker is running
// (spec.md §4.4) — that's a separate, later-lifecycle concern from startup.
func (m *Manager) Start(ctx context.Context) error {
	loaded, err := config.Load(m.cfg.ConfigDir, m.logger)
	if err != nil {
		return fmt.Errorf("manager: load config: %w", err)
	}
	m.loaded = loaded

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel

	if m.cfg.runs("producer_sim") {
		for _, wc := range loaded.ProducerSim {
			if err := m.startProducer(runCtx, wc); err != nil {
				m.logger.Error("manager: entity failed to start — skipping", "name", wc.Name, "kind", wc.Kind, "error", err.Error())
			}
		}
	}
	if m.cfg.runs("converter") {
		for _, wc := range loaded.Converter {
			if err := m.startConverter(runCtx, wc); err != nil {
				m.logger.Error("manager: entity failed to start — skipping", "name", wc.Name, "kind", wc.Kind, "error", err.Error())
			}
		}
	}
	if m.cfg.runs("receiver") {
		for _, wc := range loaded.Receiver {
			if err := m.startReceiver(runCtx, wc); err != nil {
				m.logger.Error("manager: entity failed to start — skipping", "name", wc.Name, "kind", wc.Kind, "error", err.Error())
			}
		}
	}

	m.wg.Add(1)
	go m.livenessLoop(runCtx)

	m.logger.Info("manager: pipeline running", "tiers", m.cfg.Tiers, "workers", len(m.workers))
	return nil
}

func (m *Manager) startProducer(ctx context.Context, wc models.WorkerConfig) error {
	factory, err := m.cfg.Registry.Resolve(wc.Kind)
	if err != nil {
		return fmt.Errorf("manager: producer %s: %w", wc.Name, err)
	}
	impl, err := factory(wc)
	if err != nil {
		return fmt.Errorf("manager: producer %s: factory: %w", wc.Name, err)
	}
	source, ok := impl.(producer.DataSource)
	if !ok {
		return fmt.Errorf("manager: producer %s: kind %q does not implement producer.DataSource", wc.Name, wc.Kind)
	}
	period, err := parsePeriod(wc.Period)
	if err != nil {
		return fmt.Errorf("manager: producer %s: %w", wc.Name, err)
	}

	t, err := producer.New(producer.Config{
		Name:      wc.Name,
		Backends:  wc.Backend,
		MaxBuffer: wc.MaxBuffer,
		Period:    period,
	}, source, m.logger)
	if err != nil {
		return fmt.Errorf("manager: producer %s: %w", wc.Name, err)
	}
	return m.launch(ctx, wc.Name, t)
}

func (m *Manager) startConverter(ctx context.Context, wc models.WorkerConfig) error {
	factory, err := m.cfg.Registry.Resolve(wc.Kind)
	if err != nil {
		return fmt.Errorf("manager: converter %s: %w", wc.Name, err)
	}
	impl, err := factory(wc)
	if err != nil {
		return fmt.Errorf("manager: converter %s: factory: %w", wc.Name, err)
	}
	interp, ok := impl.(transceiver.Interpreter)
	if !ok {
		return fmt.Errorf("manager: converter %s: kind %q does not implement transceiver.Interpreter", wc.Name, wc.Kind)
	}
	hooks := transceiver.Hooks{Interpret: interp}
	if wc.Bidirectional {
		handler, ok := impl.(transceiver.CommandHandler)
		if !ok {
			return fmt.Errorf("manager: converter %s: kind %q is bidirectional but does not implement transceiver.CommandHandler", wc.Name, wc.Kind)
		}
		hooks.HandleCommand = handler
	}
	if setup, ok := impl.(interface{ Setup(context.Context) error }); ok {
		hooks.Setup = setup.Setup
	}

	t, err := transceiver.New(transceiver.Config{
		Name:          wc.Name,
		Frontends:     wc.Frontend,
		Backends:      wc.Backend,
		Bidirectional: wc.Bidirectional,
		MaxBuffer:     wc.MaxBuffer,
	}, hooks, m.logger)
	if err != nil {
		return fmt.Errorf("manager: converter %s: %w", wc.Name, err)
	}
	return m.launch(ctx, wc.Name, t)
}

func (m *Manager) startReceiver(ctx context.Context, wc models.WorkerConfig) error {
	factory, err := m.cfg.Registry.Resolve(wc.Kind)
	if err != nil {
		return fmt.Errorf("manager: receiver %s: %w", wc.Name, err)
	}
	impl, err := factory(wc)
	if err != nil {
		return fmt.Errorf("manager: receiver %s: factory: %w", wc.Name, err)
	}
	handler, ok := impl.(receiver.Handler)
	if !ok {
		return fmt.Errorf("manager: receiver %s: kind %q does not implement receiver.Handler", wc.Name, wc.Kind)
	}
	if len(wc.Frontend) != 1 {
		return fmt.Errorf("manager: receiver %s: exactly one frontend is required, got %d", wc.Name, len(wc.Frontend))
	}

	r, err := receiver.New(receiver.Config{
		Name:          wc.Name,
		Frontend:      wc.Frontend[0],
		Bidirectional: wc.Bidirectional,
	}, handler, m.logger)
	if err != nil {
		return fmt.Errorf("manager: receiver %s: %w", wc.Name, err)
	}
	return m.launch(ctx, wc.Name, r)
}

func (m *Manager) launch(ctx context.Context, name string, w worker) error {
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("manager: start %s: %w", name, err)
	}
	m.mu.Lock()
	m.workers = append(m.workers, w)
	m.names = append(m.names, name)
	m.mu.Unlock()
	return nil
}

func (m *Manager) livenessLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.LivenessInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			n := len(m.workers)
			m.mu.Unlock()
			telemetry.WorkersRunning.Set(float64(n))
		}
	}
}

// Stop cancels every worker and waits for them to finish, in reverse start
// order (receivers first, then converters, then producers — consumers stop
// before their sources).
func (m *Manager) Stop() {
	m.logger.Info("manager: shutting down")
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	workers := append([]worker(nil), m.workers...)
	m.mu.Unlock()

	for i := len(workers) - 1; i >= 0; i-- {
		workers[i].Stop()
	}
	m.logger.Info("manager: shutdown complete")
}

func parsePeriod(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid period %q: %w", s, err)
	}
	return d, nil
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
