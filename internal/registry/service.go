// Package registry holds the static set of scenarios under comparison and
// knows where each scenario's statistics log lives.
package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/saveenergy/cbsreport/pkg/types"
)

const timestampPlaceholder = "{timestamp}"

type Registry struct {
	scenarios []types.ScenarioConfig
	index     map[string]int
}

// Default returns the reference deployment: shaper disabled, then the shaper
// with a 20 Mbps and a 30 Mbps reservation.
func Default() *Registry {
	r, err := New([]types.ScenarioConfig{
		types.ShaperDisabled("scenario1", "CBS Disabled"),
		types.ShaperReserved("scenario2", "CBS 20Mbps", 20),
		types.ShaperReserved("scenario3", "CBS 30Mbps", 30),
	})
	if err != nil {
		panic(err)
	}
	return r
}

func New(scenarios []types.ScenarioConfig) (*Registry, error) {
	if len(scenarios) == 0 {
		return nil, fmt.Errorf("registry needs at least one scenario")
	}
	r := &Registry{
		scenarios: make([]types.ScenarioConfig, 0, len(scenarios)),
		index:     make(map[string]int, len(scenarios)),
	}
	for _, s := range scenarios {
		if err := s.Validate(); err != nil {
			return nil, err
		}
		if _, dup := r.index[s.ID]; dup {
			return nil, fmt.Errorf("duplicate scenario id %q", s.ID)
		}
		r.index[s.ID] = len(r.scenarios)
		r.scenarios = append(r.scenarios, clone(s))
	}
	return r, nil
}

type scenarioFile struct {
	Scenarios []types.ScenarioConfig `yaml:"scenarios"`
}

// LoadFile reads a YAML scenario list. A scenario without an explicit
// variant gets one from shaping_enabled.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	var sf scenarioFile
	if err := yaml.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("parse scenario file: %w", err)
	}
	for i := range sf.Scenarios {
		if sf.Scenarios[i].Variant == "" {
			if sf.Scenarios[i].ShapingEnabled {
				sf.Scenarios[i].Variant = types.VariantReserved
			} else {
				sf.Scenarios[i].Variant = types.VariantDisabled
			}
		}
	}
	r, err := New(sf.Scenarios)
	if err != nil {
		return nil, fmt.Errorf("scenario file %s: %w", path, err)
	}
	return r, nil
}

// Load returns Default when path is empty and LoadFile otherwise.
func Load(path string) (*Registry, error) {
	if path == "" {
		return Default(), nil
	}
	return LoadFile(path)
}

func (r *Registry) Len() int {
	return len(r.scenarios)
}

// Scenarios returns the scenarios in registry order. The result is a copy.
func (r *Registry) Scenarios() []types.ScenarioConfig {
	out := make([]types.ScenarioConfig, len(r.scenarios))
	for i, s := range r.scenarios {
		out[i] = clone(s)
	}
	return out
}

func (r *Registry) Get(id string) (types.ScenarioConfig, bool) {
	i, ok := r.index[id]
	if !ok {
		return types.ScenarioConfig{}, false
	}
	return clone(r.scenarios[i]), true
}

// Baseline is the first scenario with the shaper disabled.
func (r *Registry) Baseline() (types.ScenarioConfig, bool) {
	for _, s := range r.scenarios {
		if !s.ShapingEnabled {
			return clone(s), true
		}
	}
	return types.ScenarioConfig{}, false
}

// LogPath resolves the statistics log of a scenario for one capture run.
// Without an explicit log_file the layout is <id>_stats_<timestamp>.log.
func LogPath(resultsDir, timestamp string, s types.ScenarioConfig) string {
	name := s.LogFile
	if name == "" {
		name = fmt.Sprintf("%s_stats_%s.log", s.ID, timestamp)
	} else {
		name = strings.ReplaceAll(name, timestampPlaceholder, timestamp)
	}
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(resultsDir, name)
}

func clone(s types.ScenarioConfig) types.ScenarioConfig {
	if s.ReservedBandwidthMbps != nil {
		v := *s.ReservedBandwidthMbps
		s.ReservedBandwidthMbps = &v
	}
	return s
}
