package present

import (
	"bytes"
	"fmt"
	"math"

	"github.com/montanaflynn/stats"
	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/saveenergy/cbsreport/pkg/types"
)

const (
	chartWidth  = 1024
	chartHeight = 480
	barWidth    = 36
	barSpacing  = 18
)

var palette = []drawing.Color{
	drawing.ColorFromHex("d62728"),
	drawing.ColorFromHex("2ca02c"),
	drawing.ColorFromHex("1f77b4"),
	drawing.ColorFromHex("ff7f0e"),
	drawing.ColorFromHex("9467bd"),
	drawing.ColorFromHex("8c564b"),
}

var unusedColor = drawing.ColorFromHex("c7c7c7")

func paletteColor(i int) drawing.Color {
	return palette[i%len(palette)]
}

func barStyle(col drawing.Color) chart.Style {
	return chart.Style{
		FillColor:   col,
		StrokeColor: col,
		StrokeWidth: 1,
	}
}

// throughputChart draws one bar per scenario and port. Returns nil when no
// scenario has a throughput value.
func (p *Presenter) throughputChart(r types.ComparisonReport) ([]byte, error) {
	var bars []chart.Value
	maxY := 0.0
	for i, s := range r.Scenarios {
		if s.Absent || s.Metrics == nil {
			continue
		}
		for _, port := range s.Metrics.PortIDs() {
			v := s.Metrics.Ports[port].ThroughputMbps
			if v == nil {
				continue
			}
			bars = append(bars, chart.Value{
				Label: fmt.Sprintf("%s %s", s.Config.DisplayName(), p.portLabel(port)),
				Value: *v,
				Style: barStyle(paletteColor(i)),
			})
			maxY = math.Max(maxY, *v)
		}
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return renderBars("Throughput Comparison", "Mbps", bars, maxY)
}

// latencyChart draws the mean average latency and mean jitter across ports
// for each scenario.
func (p *Presenter) latencyChart(r types.ComparisonReport) ([]byte, error) {
	var bars []chart.Value
	maxY := 0.0
	add := func(label string, values []float64, col drawing.Color) {
		if len(values) == 0 {
			return
		}
		mean, err := stats.Mean(values)
		if err != nil {
			return
		}
		bars = append(bars, chart.Value{Label: label, Value: mean, Style: barStyle(col)})
		maxY = math.Max(maxY, mean)
	}

	for i, s := range r.Scenarios {
		if s.Absent || s.Metrics == nil {
			continue
		}
		var latency, jitter []float64
		for _, port := range s.Metrics.PortIDs() {
			m := s.Metrics.Ports[port]
			if m.AvgLatencyMs != nil {
				latency = append(latency, *m.AvgLatencyMs)
			}
			if m.JitterMs != nil {
				jitter = append(jitter, *m.JitterMs)
			}
		}
		col := paletteColor(i)
		add(s.Config.DisplayName()+" latency", latency, col)
		add(s.Config.DisplayName()+" jitter", jitter, col.WithAlpha(140))
	}
	if len(bars) == 0 {
		return nil, nil
	}
	return renderBars("Latency and Jitter Comparison", "ms", bars, maxY)
}

func renderBars(title, unit string, bars []chart.Value, maxY float64) ([]byte, error) {
	width := chartWidth
	if need := len(bars)*(barWidth+barSpacing) + 160; need > width {
		width = need
	}
	if maxY <= 0 {
		maxY = 1
	}
	bc := chart.BarChart{
		Title:      title,
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 16}},
		Width:      width,
		Height:     chartHeight,
		BarWidth:   barWidth,
		BarSpacing: barSpacing,
		YAxis: chart.YAxis{
			Name:  unit,
			Range: &chart.ContinuousRange{Min: 0, Max: maxY * 1.15},
		},
		Bars: bars,
	}
	var buf bytes.Buffer
	if err := bc.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// frameLossChart plots the cumulative loss timeline of every scenario and
// port with at least two points.
func (p *Presenter) frameLossChart(r types.ComparisonReport) ([]byte, error) {
	var series []chart.Series
	minX, maxX := math.MaxFloat64, -math.MaxFloat64
	maxY := 0.0
	n := 0
	for _, s := range r.Scenarios {
		if s.Absent || s.Metrics == nil {
			continue
		}
		for _, port := range s.Metrics.PortIDs() {
			timeline := s.Metrics.Ports[port].LossTimeline
			if len(timeline) < 2 {
				continue
			}
			xs := make([]float64, len(timeline))
			ys := make([]float64, len(timeline))
			for i, pt := range timeline {
				xs[i] = pt.OffsetSeconds
				ys[i] = pt.Pct
				minX = math.Min(minX, pt.OffsetSeconds)
				maxX = math.Max(maxX, pt.OffsetSeconds)
				maxY = math.Max(maxY, pt.Pct)
			}
			col := paletteColor(n)
			n++
			series = append(series, chart.ContinuousSeries{
				Name:    fmt.Sprintf("%s %s", s.Config.DisplayName(), p.portLabel(port)),
				XValues: xs,
				YValues: ys,
				Style: chart.Style{
					StrokeWidth: 2,
					StrokeColor: col,
					DotWidth:    3,
					DotColor:    col,
				},
			})
		}
	}
	if len(series) == 0 {
		return nil, nil
	}
	if maxX <= minX {
		maxX = minX + 1
	}
	if maxY <= 0 {
		maxY = 1
	}

	ch := chart.Chart{
		Title:      "Frame Loss Rate Over Time",
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 12, Bottom: 28}},
		Width:      chartWidth,
		Height:     chartHeight,
		XAxis:      chart.XAxis{Name: "Time (s)", Range: &chart.ContinuousRange{Min: minX, Max: maxX}},
		YAxis:      chart.YAxis{Name: "Frame loss (%)", Range: &chart.ContinuousRange{Min: 0, Max: maxY * 1.1}},
		Series:     series,
	}
	ch.Elements = []chart.Renderable{chart.Legend(&ch)}
	var buf bytes.Buffer
	if err := ch.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// allocationChart shows each egress port's share of the link plus the
// unused remainder. Returns nil for absent scenarios and scenarios without
// throughput.
func (p *Presenter) allocationChart(s types.ScenarioResult) ([]byte, error) {
	if s.Absent || s.Metrics == nil {
		return nil, nil
	}
	var values []chart.Value
	used := 0.0
	for i, port := range s.Metrics.PortIDs() {
		if port == p.IngressPort {
			continue
		}
		v := s.Metrics.Ports[port].ThroughputMbps
		if v == nil || *v <= 0 {
			continue
		}
		used += *v
		values = append(values, chart.Value{
			Label: fmt.Sprintf("%s (%.1f Mbps)", p.portLabel(port), *v),
			Value: *v,
			Style: chart.Style{FillColor: paletteColor(i)},
		})
	}
	if len(values) == 0 {
		return nil, nil
	}
	if unused := p.LinkCapacityMbps - used; unused > 0 {
		values = append(values, chart.Value{
			Label: fmt.Sprintf("Unused (%.1f Mbps)", unused),
			Value: unused,
			Style: chart.Style{FillColor: unusedColor},
		})
	}

	pie := chart.PieChart{
		Title:      "Bandwidth Allocation: " + s.Config.DisplayName(),
		Background: chart.Style{Padding: chart.Box{Top: 40, Left: 16, Right: 16, Bottom: 16}},
		Width:      chartHeight * 2,
		Height:     chartHeight * 2,
		Values:     values,
	}
	var buf bytes.Buffer
	if err := pie.Render(chart.PNG, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
