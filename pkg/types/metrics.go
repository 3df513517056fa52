package types

import "sort"

// PortMetrics fields are nil when the series carried too little data to
// derive them. A nil field is never the same as a measured zero.
type PortMetrics struct {
	ThroughputMbps   *float64    `json:"throughput_mbps,omitempty"`
	FrameLossRatePct *float64    `json:"frame_loss_rate_pct,omitempty"`
	AvgLatencyMs     *float64    `json:"avg_latency_ms,omitempty"`
	MaxLatencyMs     *float64    `json:"max_latency_ms,omitempty"`
	JitterMs         *float64    `json:"jitter_ms,omitempty"`
	Samples          int         `json:"samples"`
	LossTimeline     []LossPoint `json:"loss_timeline,omitempty"`
}

// LossPoint is the cumulative frame-loss-rate observed at one sample.
type LossPoint struct {
	OffsetSeconds float64 `json:"offset_s"`
	Pct           float64 `json:"pct"`
}

type MetricsRecord struct {
	ScenarioID string              `json:"scenario_id"`
	Ports      map[int]PortMetrics `json:"ports"`
}

func (m *MetricsRecord) PortIDs() []int {
	if m == nil {
		return nil
	}
	ids := make([]int, 0, len(m.Ports))
	for id := range m.Ports {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Metric names a derived per-port value.
type Metric string

const (
	MetricThroughput    Metric = "throughput_mbps"
	MetricFrameLossRate Metric = "frame_loss_rate_pct"
	MetricAvgLatency    Metric = "avg_latency_ms"
	MetricMaxLatency    Metric = "max_latency_ms"
	MetricJitter        Metric = "jitter_ms"
)

// AllMetrics is the canonical metric order used in reports.
var AllMetrics = []Metric{
	MetricThroughput,
	MetricFrameLossRate,
	MetricAvgLatency,
	MetricMaxLatency,
	MetricJitter,
}

func (m Metric) HigherIsBetter() bool {
	return m == MetricThroughput
}

func (m Metric) Label() string {
	switch m {
	case MetricThroughput:
		return "throughput"
	case MetricFrameLossRate:
		return "frame loss rate"
	case MetricAvgLatency:
		return "average latency"
	case MetricMaxLatency:
		return "maximum latency"
	case MetricJitter:
		return "jitter"
	default:
		return string(m)
	}
}

func (m Metric) Unit() string {
	switch m {
	case MetricThroughput:
		return "Mbps"
	case MetricFrameLossRate:
		return "%"
	default:
		return "ms"
	}
}

// Value returns the metric and whether it was derived.
func (p PortMetrics) Value(m Metric) (float64, bool) {
	var v *float64
	switch m {
	case MetricThroughput:
		v = p.ThroughputMbps
	case MetricFrameLossRate:
		v = p.FrameLossRatePct
	case MetricAvgLatency:
		v = p.AvgLatencyMs
	case MetricMaxLatency:
		v = p.MaxLatencyMs
	case MetricJitter:
		v = p.JitterMs
	}
	if v == nil {
		return 0, false
	}
	return *v, true
}
