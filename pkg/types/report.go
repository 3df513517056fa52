package types

import "time"

type ScenarioResult struct {
	Config  ScenarioConfig `json:"config"`
	Metrics *MetricsRecord `json:"metrics,omitempty"`
	Absent  bool           `json:"absent"`
}

type Improvement struct {
	ScenarioID string  `json:"scenario_id"`
	Port       int     `json:"port"`
	Metric     Metric  `json:"metric"`
	Baseline   float64 `json:"baseline"`
	Shaped     float64 `json:"shaped"`
	Pct        float64 `json:"improvement_pct"`
}

// ComparisonReport is read-only once built.
type ComparisonReport struct {
	ID           string           `json:"id"`
	LogTimestamp string           `json:"log_timestamp"`
	GeneratedAt  time.Time        `json:"generated_at"`
	BaselineID   string           `json:"baseline_id,omitempty"`
	Scenarios    []ScenarioResult `json:"scenarios"`
	Improvements []Improvement    `json:"improvements"`
	Findings     []string         `json:"findings"`
}

func (r *ComparisonReport) AbsentCount() int {
	n := 0
	for _, s := range r.Scenarios {
		if s.Absent {
			n++
		}
	}
	return n
}

func (r *ComparisonReport) Scenario(id string) (ScenarioResult, bool) {
	for _, s := range r.Scenarios {
		if s.Config.ID == id {
			return s, true
		}
	}
	return ScenarioResult{}, false
}
