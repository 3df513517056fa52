package present

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/saveenergy/cbsreport/pkg/diagnostic"
	"github.com/saveenergy/cbsreport/pkg/types"
)

// SummaryRow is one scenario and port of the summary table. Omitted metrics
// are empty strings so they never read as a measured zero.
type SummaryRow struct {
	ScenarioID     string `csv:"scenario_id"`
	Scenario       string `csv:"scenario"`
	Status         string `csv:"status"`
	Port           string `csv:"port"`
	PortLabel      string `csv:"port_label"`
	ThroughputMbps string `csv:"throughput_mbps"`
	FrameLossPct   string `csv:"frame_loss_rate_pct"`
	AvgLatencyMs   string `csv:"avg_latency_ms"`
	MaxLatencyMs   string `csv:"max_latency_ms"`
	JitterMs       string `csv:"jitter_ms"`
	Samples        string `csv:"samples"`
	Grade          string `csv:"grade"`
	Latency        string `csv:"latency_rating"`
	Stability      string `csv:"stability_rating"`
	Concerns       string `csv:"concerns"`
}

const (
	statusOK     = "ok"
	statusAbsent = "absent"
)

// SummaryRows flattens the report in scenario order, ports ascending. An
// absent scenario yields a single row with no port.
func (p *Presenter) SummaryRows(r types.ComparisonReport) []SummaryRow {
	var rows []SummaryRow
	for _, s := range r.Scenarios {
		if s.Absent || s.Metrics == nil {
			rows = append(rows, SummaryRow{
				ScenarioID: s.Config.ID,
				Scenario:   s.Config.DisplayName(),
				Status:     statusAbsent,
			})
			continue
		}
		for _, port := range s.Metrics.PortIDs() {
			m := s.Metrics.Ports[port]
			a := diagnostic.Assess(m, s.Config.ReservedBandwidthMbps)
			rows = append(rows, SummaryRow{
				ScenarioID:     s.Config.ID,
				Scenario:       s.Config.DisplayName(),
				Status:         statusOK,
				Port:           fmt.Sprintf("%d", port),
				PortLabel:      p.portLabel(port),
				ThroughputMbps: formatOptional(m.ThroughputMbps, 2),
				FrameLossPct:   formatOptional(m.FrameLossRatePct, 3),
				AvgLatencyMs:   formatOptional(m.AvgLatencyMs, 2),
				MaxLatencyMs:   formatOptional(m.MaxLatencyMs, 2),
				JitterMs:       formatOptional(m.JitterMs, 2),
				Samples:        fmt.Sprintf("%d", m.Samples),
				Grade:          a.Grade,
				Latency:        a.LatencyRating,
				Stability:      a.StabilityRating,
				Concerns:       strings.Join(a.Concerns, "; "),
			})
		}
	}
	return rows
}

func formatOptional(v *float64, prec int) string {
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%.*f", prec, *v)
}

func (p *Presenter) summaryCSV(r types.ComparisonReport) ([]byte, error) {
	rows := p.SummaryRows(r)
	if len(rows) == 0 {
		return nil, nil
	}
	return gocsv.MarshalBytes(&rows)
}

type improvementView struct {
	Scenario string
	Port     string
	Metric   string
	Baseline string
	Shaped   string
	Pct      string
}

type summaryView struct {
	ID           string
	LogTimestamp string
	GeneratedAt  string
	Baseline     string
	Rows         []SummaryRow
	Improvements []improvementView
	Findings     []string
}

var summaryTemplate = template.Must(template.New("summary").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>CBS Performance Test Results Summary</title>
<style>
body { font-family: Arial, sans-serif; margin: 24px; }
.summary-table { border-collapse: collapse; width: 100%; margin-bottom: 24px; }
.summary-table th { background-color: #4CAF50; color: white; padding: 12px; text-align: left; }
.summary-table td { border: 1px solid #ddd; padding: 8px; }
.summary-table tr:nth-child(even) { background-color: #f2f2f2; }
.absent { color: #999; font-style: italic; }
.meta { color: #555; }
</style>
</head>
<body>
<h2>CBS Performance Test Results Summary</h2>
<p class="meta">Run {{.LogTimestamp}} &middot; report {{.ID}} &middot; generated {{.GeneratedAt}}{{if .Baseline}} &middot; baseline {{.Baseline}}{{end}}</p>
<table class="summary-table">
<tr><th>Scenario</th><th>Port</th><th>Throughput (Mbps)</th><th>Frame Loss (%)</th><th>Avg Latency (ms)</th><th>Max Latency (ms)</th><th>Jitter (ms)</th><th>Samples</th><th>Grade</th><th>Latency</th><th>Stability</th><th>Concerns</th></tr>
{{range .Rows}}{{if eq .Status "absent"}}<tr class="absent"><td>{{.Scenario}}</td><td colspan="11">log file missing</td></tr>
{{else}}<tr><td>{{.Scenario}}</td><td>{{.PortLabel}}</td><td>{{or .ThroughputMbps "-"}}</td><td>{{or .FrameLossPct "-"}}</td><td>{{or .AvgLatencyMs "-"}}</td><td>{{or .MaxLatencyMs "-"}}</td><td>{{or .JitterMs "-"}}</td><td>{{.Samples}}</td><td>{{.Grade}}</td><td>{{.Latency}}</td><td>{{.Stability}}</td><td>{{.Concerns}}</td></tr>
{{end}}{{end}}</table>
{{if .Improvements}}<h3>Improvement over baseline</h3>
<table class="summary-table">
<tr><th>Scenario</th><th>Port</th><th>Metric</th><th>Baseline</th><th>Shaped</th><th>Improvement (%)</th></tr>
{{range .Improvements}}<tr><td>{{.Scenario}}</td><td>{{.Port}}</td><td>{{.Metric}}</td><td>{{.Baseline}}</td><td>{{.Shaped}}</td><td>{{.Pct}}</td></tr>
{{end}}</table>
{{end}}<h3>Key findings</h3>
<ul>
{{range .Findings}}<li>{{.}}</li>
{{else}}<li>No findings.</li>
{{end}}</ul>
</body>
</html>
`))

func (p *Presenter) summaryHTML(r types.ComparisonReport) ([]byte, error) {
	view := summaryView{
		ID:           r.ID,
		LogTimestamp: r.LogTimestamp,
		GeneratedAt:  r.GeneratedAt.Format(time.RFC3339),
		Rows:         p.SummaryRows(r),
		Findings:     r.Findings,
	}
	if b, ok := r.Scenario(r.BaselineID); ok {
		view.Baseline = b.Config.DisplayName()
	}
	for _, imp := range r.Improvements {
		name := imp.ScenarioID
		if s, ok := r.Scenario(imp.ScenarioID); ok {
			name = s.Config.DisplayName()
		}
		unit := imp.Metric.Unit()
		view.Improvements = append(view.Improvements, improvementView{
			Scenario: name,
			Port:     p.portLabel(imp.Port),
			Metric:   imp.Metric.Label(),
			Baseline: fmt.Sprintf("%.2f %s", imp.Baseline, unit),
			Shaped:   fmt.Sprintf("%.2f %s", imp.Shaped, unit),
			Pct:      fmt.Sprintf("%.1f", imp.Pct),
		})
	}

	var buf bytes.Buffer
	if err := summaryTemplate.Execute(&buf, view); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ReportDocument is the layout of test_report.json.
type ReportDocument struct {
	Timestamp string                 `json:"timestamp"`
	TestDate  string                 `json:"test_date"`
	ReportID  string                 `json:"report_id"`
	Baseline  string                 `json:"baseline_id,omitempty"`
	Scenarios []types.ScenarioResult `json:"scenarios"`
	Summary   ReportSummary          `json:"summary"`
}

type ReportSummary struct {
	Findings     []string            `json:"findings"`
	Improvements []types.Improvement `json:"improvements"`
}

func NewReportDocument(r types.ComparisonReport) ReportDocument {
	doc := ReportDocument{
		Timestamp: r.LogTimestamp,
		TestDate:  r.GeneratedAt.Format("2006-01-02 15:04:05"),
		ReportID:  r.ID,
		Baseline:  r.BaselineID,
		Scenarios: r.Scenarios,
		Summary: ReportSummary{
			Findings:     r.Findings,
			Improvements: r.Improvements,
		},
	}
	if doc.Scenarios == nil {
		doc.Scenarios = []types.ScenarioResult{}
	}
	if doc.Summary.Findings == nil {
		doc.Summary.Findings = []string{}
	}
	if doc.Summary.Improvements == nil {
		doc.Summary.Improvements = []types.Improvement{}
	}
	return doc
}

func (p *Presenter) reportJSON(r types.ComparisonReport) ([]byte, error) {
	data, err := json.MarshalIndent(NewReportDocument(r), "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
