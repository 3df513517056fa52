// Package diagnostic grades the derived metrics of one port into ratings an
// operator can scan in a summary table.
package diagnostic

import (
	"fmt"

	"github.com/saveenergy/cbsreport/pkg/types"
)

const unknown = "unknown"

// Assessment is the interpretation of one port in one scenario.
type Assessment struct {
	Grade           string   `json:"grade"`
	LatencyRating   string   `json:"latency_rating"`
	StabilityRating string   `json:"stability_rating"`
	Concerns        []string `json:"concerns"`
}

// Assess rates a port. reservedMbps is the scenario's reservation, if any.
// Omitted metrics rate as unknown rather than good or bad.
func Assess(p types.PortMetrics, reservedMbps *float64) Assessment {
	a := Assessment{
		LatencyRating:   rateLatency(p.AvgLatencyMs),
		StabilityRating: rateStability(p.JitterMs, p.FrameLossRatePct),
		Concerns:        concerns(p, reservedMbps),
	}
	a.Grade = computeGrade(a.LatencyRating, a.StabilityRating)
	return a
}

// Latency thresholds target time-sensitive video streams, not bulk traffic.
func rateLatency(ms *float64) string {
	if ms == nil {
		return unknown
	}
	switch {
	case *ms <= 2:
		return "excellent"
	case *ms <= 10:
		return "good"
	case *ms <= 50:
		return "fair"
	default:
		return "poor"
	}
}

func rateStability(jitterMs, lossPct *float64) string {
	if jitterMs == nil && lossPct == nil {
		return unknown
	}
	if lossPct != nil && *lossPct > 2 {
		return "unstable"
	}
	if (lossPct != nil && *lossPct > 0.5) || (jitterMs != nil && *jitterMs > 30) {
		return "degraded"
	}
	if jitterMs != nil && *jitterMs > 5 {
		return "fair"
	}
	return "stable"
}

func concerns(p types.PortMetrics, reservedMbps *float64) []string {
	c := []string{}

	if p.FrameLossRatePct != nil && *p.FrameLossRatePct > 1 {
		c = append(c, fmt.Sprintf("frame loss %.2f%%", *p.FrameLossRatePct))
	}
	if p.MaxLatencyMs != nil && *p.MaxLatencyMs > 100 {
		c = append(c, fmt.Sprintf("latency spikes up to %.1f ms", *p.MaxLatencyMs))
	}
	if p.JitterMs != nil && *p.JitterMs > 30 {
		c = append(c, fmt.Sprintf("jitter %.1f ms", *p.JitterMs))
	}
	if reservedMbps != nil && p.ThroughputMbps != nil && *p.ThroughputMbps > *reservedMbps {
		c = append(c, fmt.Sprintf("throughput %.1f Mbps exceeds %.0f Mbps reservation", *p.ThroughputMbps, *reservedMbps))
	}
	if p.ThroughputMbps == nil && p.FrameLossRatePct == nil && p.AvgLatencyMs == nil {
		c = append(c, "insufficient data")
	}
	return c
}

var ratingScore = map[string]int{
	"excellent": 4,
	"stable":    4,
	"good":      3,
	"fair":      2,
	"degraded":  1,
	"poor":      0,
	"unstable":  0,
}

func computeGrade(latency, stability string) string {
	if latency == unknown && stability == unknown {
		return "-"
	}
	// An unknown side counts as the known side's score so one missing
	// channel neither lifts nor sinks the grade.
	l, okL := ratingScore[latency]
	s, okS := ratingScore[stability]
	if !okL {
		l = s
	}
	if !okS {
		s = l
	}
	switch score := l + s; {
	case score >= 7:
		return "A"
	case score >= 6:
		return "B"
	case score >= 4:
		return "C"
	case score >= 2:
		return "D"
	default:
		return "F"
	}
}
