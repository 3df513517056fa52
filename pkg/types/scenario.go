package types

import "fmt"

type Variant string

const (
	VariantDisabled Variant = "disabled"
	VariantReserved Variant = "reserved"
)

// ScenarioConfig describes one experimental configuration under comparison.
type ScenarioConfig struct {
	ID                    string   `json:"id" yaml:"id"`
	Name                  string   `json:"name" yaml:"name"`
	Variant               Variant  `json:"variant" yaml:"variant"`
	ShapingEnabled        bool     `json:"shaping_enabled" yaml:"shaping_enabled"`
	ReservedBandwidthMbps *float64 `json:"reserved_bandwidth_mbps,omitempty" yaml:"reserved_bandwidth_mbps,omitempty"`
	LogFile               string   `json:"log_file,omitempty" yaml:"log_file,omitempty"`
}

func ShaperDisabled(id, name string) ScenarioConfig {
	return ScenarioConfig{
		ID:      id,
		Name:    name,
		Variant: VariantDisabled,
	}
}

func ShaperReserved(id, name string, mbps float64) ScenarioConfig {
	return ScenarioConfig{
		ID:                    id,
		Name:                  name,
		Variant:               VariantReserved,
		ShapingEnabled:        true,
		ReservedBandwidthMbps: &mbps,
	}
}

// DisplayName falls back to a name derived from the shaper settings.
func (s ScenarioConfig) DisplayName() string {
	if s.Name != "" {
		return s.Name
	}
	if !s.ShapingEnabled {
		return "CBS Disabled"
	}
	if s.ReservedBandwidthMbps != nil {
		return fmt.Sprintf("CBS %gMbps", *s.ReservedBandwidthMbps)
	}
	return s.ID
}

func (s ScenarioConfig) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("scenario id cannot be empty")
	}
	switch s.Variant {
	case VariantDisabled:
		if s.ShapingEnabled {
			return fmt.Errorf("scenario %s: variant %q cannot enable shaping", s.ID, s.Variant)
		}
		if s.ReservedBandwidthMbps != nil {
			return fmt.Errorf("scenario %s: reservation set with shaping disabled", s.ID)
		}
	case VariantReserved:
		if !s.ShapingEnabled {
			return fmt.Errorf("scenario %s: variant %q requires shaping", s.ID, s.Variant)
		}
		if s.ReservedBandwidthMbps == nil || *s.ReservedBandwidthMbps <= 0 {
			return fmt.Errorf("scenario %s: reserved bandwidth must be > 0", s.ID)
		}
	default:
		return fmt.Errorf("scenario %s: unknown variant %q", s.ID, s.Variant)
	}
	return nil
}
