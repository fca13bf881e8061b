// Package config loads a pipeline's YAML configuration tree and the
// persisted OnlineMonitor.ini settings store. The YAML loader generalizes
// pkg/snmpcollector/config/loader.go's directory-walk + lenient-decode
// pattern from six device-config trees down to the three top-level sections
// spec.md §6 defines: producer_sim, converter, receiver.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/daqlab/onlinemonitor/models"
)

// defaultMaxBuffer mirrors transceiver.defaultMaxBuffer; kept independent so
// this package has no import-cycle dependency on transceiver.
const defaultMaxBuffer = 10

// Load reads every *.yml/*.yaml file directly under dir (non-recursive,
// matching the teacher's yamlFiles walker restricted to one level — a
// pipeline's files are flat, unlike the six nested device trees) and merges
// their producer_sim/converter/receiver sections into one PipelineConfig.
// Errors from individual files are accumulated and returned together so an
// operator sees every problem at once.
func Load(dir string, logger *slog.Logger) (*models.PipelineConfig, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}

	files, err := yamlFiles(dir)
	if err != nil {
		return nil, fmt.Errorf("config: list %s: %w", dir, err)
	}

	cfg := &models.PipelineConfig{}
	var errs []string
	for _, path := range files {
		section, err := decodeFile(path)
		if err != nil {
			errs = append(errs, err.Error())
			continue
		}
		cfg.ProducerSim = append(cfg.ProducerSim, section.ProducerSim...)
		cfg.Converter = append(cfg.Converter, section.Converter...)
		cfg.Receiver = append(cfg.Receiver, section.Receiver...)
	}

	if len(errs) > 0 {
		return cfg, fmt.Errorf("config: %d file(s) failed to load:\n%s", len(errs), strings.Join(errs, "\n"))
	}

	applyDefaults(cfg)
	logger.Info("config: loaded pipeline configuration",
		"files", len(files),
		"producer_sim", len(cfg.ProducerSim),
		"converter", len(cfg.Converter),
		"receiver", len(cfg.Receiver),
	)
	return cfg, nil
}

func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yml" || ext == ".yaml" {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

func decodeFile(path string) (*models.PipelineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var section models.PipelineConfig
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(false)
	if err := dec.Decode(&section); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &section, nil
}

// applyDefaults fills in zero-valued fields with package defaults, the same
// role loadDevices' defaults-merge plays in the teacher.
func applyDefaults(cfg *models.PipelineConfig) {
	for i := range cfg.ProducerSim {
		withDefaults(&cfg.ProducerSim[i])
	}
	for i := range cfg.Converter {
		withDefaults(&cfg.Converter[i])
	}
	for i := range cfg.Receiver {
		withDefaults(&cfg.Receiver[i])
	}
}

func withDefaults(wc *models.WorkerConfig) {
	if wc.MaxBuffer <= 0 {
		wc.MaxBuffer = defaultMaxBuffer
	}
	if wc.Codec == "" {
		wc.Codec = "jsonnum"
	}
}

type noopWriter struct{}

func (noopWriter) Write(p []byte) (int, error) { return len(p), nil }
