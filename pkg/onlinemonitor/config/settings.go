package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-ini/ini"
)

// DefaultGeometry is returned by Settings.WindowGeometry when the settings
// file has never recorded one, matching the original's (100, 100, 1024, 768)
// fallback.
var DefaultGeometry = [4]int{100, 100, 1024, 768}

// Settings is the persisted OnlineMonitor.ini store: search-root paths for
// each of the three plugin kinds, a one-time initialization flag, and the
// last window geometry. Schema reverse-engineered from
// original_source/online_monitor/utils/settings.py.
type Settings struct {
	path string
}

// OpenSettings opens (creating if absent) the INI file at path.
func OpenSettings(path string) (*Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("config: settings: create %s: %w", path, err)
		}
		_ = f.Close()
	}
	return &Settings{path: path}, nil
}

func (s *Settings) load() (*ini.File, error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{Loose: true, AllowShadows: true}, s.path)
	if err != nil {
		return nil, fmt.Errorf("config: settings: load %s: %w", s.path, err)
	}
	return cfg, nil
}

func (s *Settings) save(cfg *ini.File) error {
	if err := cfg.SaveTo(s.path); err != nil {
		return fmt.Errorf("config: settings: save %s: %w", s.path, err)
	}
	return nil
}

// Initialized reports whether the monitor has completed its one-time setup.
func (s *Settings) Initialized() (bool, error) {
	cfg, err := s.load()
	if err != nil {
		return false, err
	}
	return cfg.Section("OnlineMonitor").Key("initialized").MustBool(false), nil
}

// SetInitialized records that one-time setup has completed.
func (s *Settings) SetInitialized(v bool) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	cfg.Section("OnlineMonitor").Key("initialized").SetValue(strconv.FormatBool(v))
	return s.save(cfg)
}

const (
	sectionConverter   = "converter"
	sectionReceiver    = "receiver"
	sectionProducerSim = "producer_sim"
)

// ConverterPaths, ReceiverPaths, ProducerSimPaths return the configured
// plugin search roots for each kind.
func (s *Settings) ConverterPaths() ([]string, error)   { return s.paths(sectionConverter) }
func (s *Settings) ReceiverPaths() ([]string, error)    { return s.paths(sectionReceiver) }
func (s *Settings) ProducerSimPaths() ([]string, error) { return s.paths(sectionProducerSim) }

// AddConverterPath, AddReceiverPath, AddProducerSimPath append path to the
// corresponding search root list, deduplicating (matching the original's
// list(set(paths))).
func (s *Settings) AddConverterPath(path string) error   { return s.addPath(sectionConverter, path) }
func (s *Settings) AddReceiverPath(path string) error    { return s.addPath(sectionReceiver, path) }
func (s *Settings) AddProducerSimPath(path string) error { return s.addPath(sectionProducerSim, path) }

// DeleteConverterPath, DeleteReceiverPath, DeleteProducerSimPath remove path
// from the corresponding search root list.
func (s *Settings) DeleteConverterPath(path string) error   { return s.deletePath(sectionConverter, path) }
func (s *Settings) DeleteReceiverPath(path string) error    { return s.deletePath(sectionReceiver, path) }
func (s *Settings) DeleteProducerSimPath(path string) error { return s.deletePath(sectionProducerSim, path) }

func (s *Settings) paths(section string) ([]string, error) {
	cfg, err := s.load()
	if err != nil {
		return nil, err
	}
	raw := cfg.Section(section).Key("path").String()
	return splitPaths(raw), nil
}

func (s *Settings) addPath(section, path string) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	existing := splitPaths(cfg.Section(section).Key("path").String())
	existing = dedup(append(existing, path))
	cfg.Section(section).Key("path").SetValue(joinPaths(existing))
	return s.save(cfg)
}

func (s *Settings) deletePath(section, path string) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	existing := splitPaths(cfg.Section(section).Key("path").String())
	kept := existing[:0]
	for _, p := range existing {
		if p != path {
			kept = append(kept, p)
		}
	}
	cfg.Section(section).Key("path").SetValue(joinPaths(kept))
	return s.save(cfg)
}

func splitPaths(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func joinPaths(paths []string) string {
	return strings.Join(paths, ", ")
}

func dedup(paths []string) []string {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// WindowGeometry returns the last saved (x, y, width, height), or
// DefaultGeometry if none has been recorded.
func (s *Settings) WindowGeometry() ([4]int, error) {
	cfg, err := s.load()
	if err != nil {
		return DefaultGeometry, err
	}
	raw := cfg.Section("monitor").Key("geometry").String()
	if strings.TrimSpace(raw) == "" {
		return DefaultGeometry, nil
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return DefaultGeometry, nil
	}
	var geo [4]int
	for i, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return DefaultGeometry, nil
		}
		geo[i] = v
	}
	return geo, nil
}

// SetWindowGeometry records (x, y, width, height).
func (s *Settings) SetWindowGeometry(geo [4]int) error {
	cfg, err := s.load()
	if err != nil {
		return err
	}
	strs := make([]string, 4)
	for i, v := range geo {
		strs[i] = strconv.Itoa(v)
	}
	cfg.Section("monitor").Key("geometry").SetValue(strings.Join(strs, ", "))
	return s.save(cfg)
}
