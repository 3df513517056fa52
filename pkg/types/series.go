package types

import (
	"sort"
	"time"
)

type CounterMode string

const (
	CountersCumulative CounterMode = "cumulative"
	CountersDelta      CounterMode = "delta"
)

// PortSeries holds the counter samples of one port. The four counter slices
// are aligned with TimeSeriesRecord.Timestamps; LatencyMs only holds the
// delay samples that were actually present in the log.
type PortSeries struct {
	RxPackets []uint64  `json:"rx_packets"`
	TxPackets []uint64  `json:"tx_packets"`
	RxDropped []uint64  `json:"rx_dropped"`
	TxDropped []uint64  `json:"tx_dropped"`
	LatencyMs []float64 `json:"latency_ms,omitempty"`
}

func (p *PortSeries) Len() int {
	if p == nil {
		return 0
	}
	return len(p.TxPackets)
}

type TimeSeriesRecord struct {
	ScenarioID string              `json:"scenario_id"`
	Source     string              `json:"source"`
	Interval   time.Duration       `json:"interval"`
	Mode       CounterMode         `json:"mode"`
	Timestamps []time.Time         `json:"timestamps"`
	Ports      map[int]*PortSeries `json:"ports"`
	Skipped    int                 `json:"skipped_lines"`
}

func NewTimeSeriesRecord(interval time.Duration, ports []int) *TimeSeriesRecord {
	r := &TimeSeriesRecord{
		Interval: interval,
		Mode:     CountersCumulative,
		Ports:    make(map[int]*PortSeries, len(ports)),
	}
	for _, p := range ports {
		r.Ports[p] = &PortSeries{}
	}
	return r
}

func (r *TimeSeriesRecord) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Timestamps)
}

// PortIDs returns the port indexes in ascending order.
func (r *TimeSeriesRecord) PortIDs() []int {
	if r == nil {
		return nil
	}
	ids := make([]int, 0, len(r.Ports))
	for id := range r.Ports {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
