package metrics

import (
	"time"

	"github.com/montanaflynn/stats"

	"github.com/saveenergy/cbsreport/pkg/types"
)

const (
	DefaultFrameSizeBytes = 1500
	bitsPerByte           = 8
	bitsPerMegabit        = 1e6
)

// Calculator derives per-port metrics from one scenario's counter series.
// It keeps no state between calls.
type Calculator struct {
	FrameSizeBytes int
}

func NewCalculator() *Calculator {
	return &Calculator{FrameSizeBytes: DefaultFrameSizeBytes}
}

func (c *Calculator) Compute(series *types.TimeSeriesRecord) types.MetricsRecord {
	rec := types.MetricsRecord{Ports: make(map[int]types.PortMetrics)}
	if series == nil {
		return rec
	}
	rec.ScenarioID = series.ScenarioID

	interval := series.Interval
	if interval <= 0 {
		interval = time.Second
	}
	frameSize := c.FrameSizeBytes
	if frameSize <= 0 {
		frameSize = DefaultFrameSizeBytes
	}

	for _, port := range series.PortIDs() {
		ps := series.Ports[port]
		if ps == nil {
			ps = &types.PortSeries{}
		}
		rec.Ports[port] = computePort(ps, series.Mode, interval, frameSize)
	}
	return rec
}

func computePort(ps *types.PortSeries, mode types.CounterMode, interval time.Duration, frameSize int) types.PortMetrics {
	pm := types.PortMetrics{Samples: ps.Len()}

	if v, ok := Throughput(ps.TxPackets, mode, interval, frameSize); ok {
		pm.ThroughputMbps = &v
	}
	if v, ok := FrameLossRate(ps.TxPackets, ps.RxDropped, mode); ok {
		pm.FrameLossRatePct = &v
	}
	if len(ps.LatencyMs) > 0 {
		avg, max := LatencyStats(ps.LatencyMs)
		pm.AvgLatencyMs = &avg
		pm.MaxLatencyMs = &max
		if j, ok := CalculateJitter(ps.LatencyMs); ok {
			pm.JitterMs = &j
		}
	}
	pm.LossTimeline = LossTimeline(ps.TxPackets, ps.RxDropped, mode, interval)
	return pm
}

// Throughput is the mean per-interval transmit rate in Mbps. Cumulative
// counters are differenced first; delta counters already are per-interval.
// Fewer than two samples is not enough data.
func Throughput(tx []uint64, mode types.CounterMode, interval time.Duration, frameSizeBytes int) (float64, bool) {
	if len(tx) < 2 {
		return 0, false
	}

	var packets []float64
	if mode == types.CountersDelta {
		packets = make([]float64, len(tx))
		for i, v := range tx {
			packets[i] = float64(v)
		}
	} else {
		packets = make([]float64, len(tx)-1)
		for i := 1; i < len(tx); i++ {
			packets[i-1] = float64(tx[i]) - float64(tx[i-1])
		}
	}

	rates := make([]float64, len(packets))
	for i, n := range packets {
		rates[i] = n * float64(frameSizeBytes) * bitsPerByte / (interval.Seconds() * bitsPerMegabit)
	}
	mean, err := stats.Mean(rates)
	if err != nil {
		return 0, false
	}
	return mean, true
}

// FrameLossRate is dropped/transmitted*100 over the whole run. A zero
// transmit total has no defined rate.
func FrameLossRate(tx, rxDropped []uint64, mode types.CounterMode) (float64, bool) {
	if len(tx) == 0 || len(rxDropped) == 0 {
		return 0, false
	}

	var total, dropped float64
	if mode == types.CountersDelta {
		for _, v := range tx {
			total += float64(v)
		}
		for _, v := range rxDropped {
			dropped += float64(v)
		}
	} else {
		total = float64(tx[len(tx)-1])
		dropped = float64(rxDropped[len(rxDropped)-1])
	}

	if total == 0 {
		return 0, false
	}
	return dropped / total * 100, true
}

// LossTimeline returns the running frame-loss-rate at every sample whose
// transmit total is non-zero.
func LossTimeline(tx, rxDropped []uint64, mode types.CounterMode, interval time.Duration) []types.LossPoint {
	n := len(tx)
	if len(rxDropped) < n {
		n = len(rxDropped)
	}

	var points []types.LossPoint
	var total, dropped float64
	for i := 0; i < n; i++ {
		if mode == types.CountersDelta {
			total += float64(tx[i])
			dropped += float64(rxDropped[i])
		} else {
			total = float64(tx[i])
			dropped = float64(rxDropped[i])
		}
		if total == 0 {
			continue
		}
		points = append(points, types.LossPoint{
			OffsetSeconds: float64(i) * interval.Seconds(),
			Pct:           dropped / total * 100,
		})
	}
	return points
}

// LatencyStats returns the mean and maximum of a non-empty sample set.
func LatencyStats(samplesMs []float64) (avg, max float64) {
	avg, _ = stats.Mean(samplesMs)
	max, _ = stats.Max(samplesMs)
	return avg, max
}

// CalculateJitter is the mean absolute difference between consecutive
// samples. It needs at least two samples.
func CalculateJitter(samplesMs []float64) (float64, bool) {
	if len(samplesMs) < 2 {
		return 0, false
	}

	var sum float64
	for i := 1; i < len(samplesMs); i++ {
		diff := samplesMs[i] - samplesMs[i-1]
		if diff < 0 {
			diff = -diff
		}
		sum += diff
	}
	return sum / float64(len(samplesMs)-1), true
}
