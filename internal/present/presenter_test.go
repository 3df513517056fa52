package present_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/saveenergy/cbsreport/internal/present"
	reporterrors "github.com/saveenergy/cbsreport/pkg/errors"
	"github.com/saveenergy/cbsreport/pkg/types"
)

func f(v float64) *float64 { return &v }

var pngMagic = []byte{0x89, 'P', 'N', 'G'}

func sampleReport() types.ComparisonReport {
	baseline := types.ShaperDisabled("scenario1", "")
	shaped := types.ShaperReserved("scenario2", "", 20)
	missing := types.ShaperReserved("scenario3", "", 30)

	timeline := []types.LossPoint{{OffsetSeconds: 0, Pct: 0}, {OffsetSeconds: 1, Pct: 10}, {OffsetSeconds: 2, Pct: 15.7}}
	return types.ComparisonReport{
		ID:           "run-1",
		LogTimestamp: "20240101_120000",
		GeneratedAt:  time.Date(2024, 1, 1, 12, 5, 0, 0, time.UTC),
		BaselineID:   "scenario1",
		Scenarios: []types.ScenarioResult{
			{Config: baseline, Metrics: &types.MetricsRecord{ScenarioID: "scenario1", Ports: map[int]types.PortMetrics{
				1: {ThroughputMbps: f(8.2), FrameLossRatePct: f(15.7), AvgLatencyMs: f(45.2), MaxLatencyMs: f(120), JitterMs: f(62.3), Samples: 3, LossTimeline: timeline},
				2: {ThroughputMbps: f(7.9), Samples: 3},
			}}},
			{Config: shaped, Metrics: &types.MetricsRecord{ScenarioID: "scenario2", Ports: map[int]types.PortMetrics{
				1: {ThroughputMbps: f(14.8), FrameLossRatePct: f(0.1), AvgLatencyMs: f(2.3), MaxLatencyMs: f(4), JitterMs: f(0.8), Samples: 3},
				2: {ThroughputMbps: f(14.7), Samples: 3},
			}}},
			{Config: missing, Absent: true},
		},
		Improvements: []types.Improvement{
			{ScenarioID: "scenario2", Port: 1, Metric: types.MetricAvgLatency, Baseline: 45.2, Shaped: 2.3, Pct: 94.9},
		},
		Findings: []string{
			"scenario3 (CBS 30Mbps) log file missing; excluded from comparison.",
			"CBS 20Mbps improved average latency on Video Stream 1 by 94.9% (45.20 ms → 2.30 ms).",
		},
	}
}

func newPresenter(dir string) *present.Presenter {
	p := present.New(dir)
	p.PortLabels = map[int]string{0: "Ingress", 1: "Video Stream 1", 2: "Video Stream 2"}
	p.IngressPort = 0
	return p
}

func TestPresenterWriteAll(t *testing.T) {
	dir := t.TempDir()
	files, err := newPresenter(dir).Write(sampleReport())
	if err != nil {
		t.Fatalf("write: %v", err)
	}

	want := []string{
		present.ThroughputChartFile,
		present.FrameLossChartFile,
		present.LatencyChartFile,
		present.AllocationChartFile("scenario1"),
		present.AllocationChartFile("scenario2"),
		present.SummaryHTMLFile,
		present.SummaryCSVFile,
		present.ReportJSONFile,
	}
	if len(files) != len(want) {
		t.Fatalf("files = %v, want %d entries", files, len(want))
	}
	for i, name := range want {
		if files[i] != filepath.Join(dir, name) {
			t.Fatalf("files[%d] = %s, want %s", i, files[i], name)
		}
		data, err := os.ReadFile(files[i])
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if strings.HasSuffix(name, ".png") && !bytes.HasPrefix(data, pngMagic) {
			t.Fatalf("%s is not a PNG", name)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, present.AllocationChartFile("scenario3"))); !os.IsNotExist(err) {
		t.Fatalf("absent scenario should have no allocation chart, stat err = %v", err)
	}
}

func TestPresenterCSV(t *testing.T) {
	dir := t.TempDir()
	if _, err := newPresenter(dir).Write(sampleReport()); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, present.SummaryCSVFile))
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}

	var rows []present.SummaryRow
	if err := gocsv.UnmarshalBytes(data, &rows); err != nil {
		t.Fatalf("parse csv: %v", err)
	}
	if len(rows) != 5 {
		t.Fatalf("rows = %d, want 5", len(rows))
	}
	if rows[0].ScenarioID != "scenario1" || rows[0].PortLabel != "Video Stream 1" || rows[0].ThroughputMbps != "8.20" {
		t.Fatalf("unexpected first row: %+v", rows[0])
	}
	if rows[1].FrameLossPct != "" || rows[1].JitterMs != "" {
		t.Fatalf("omitted metrics must be empty, got %+v", rows[1])
	}
	if rows[4].Status != "absent" || rows[4].Port != "" {
		t.Fatalf("absent row = %+v", rows[4])
	}
}

func TestPresenterJSON(t *testing.T) {
	dir := t.TempDir()
	if _, err := newPresenter(dir).Write(sampleReport()); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, present.ReportJSONFile))
	if err != nil {
		t.Fatalf("read json: %v", err)
	}

	var doc present.ReportDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse json: %v", err)
	}
	if doc.Timestamp != "20240101_120000" || doc.ReportID != "run-1" {
		t.Fatalf("doc header = %+v", doc)
	}
	if doc.TestDate != "2024-01-01 12:05:00" {
		t.Fatalf("test_date = %q", doc.TestDate)
	}
	if len(doc.Scenarios) != 3 || !doc.Scenarios[2].Absent {
		t.Fatalf("scenarios = %+v", doc.Scenarios)
	}
	if len(doc.Summary.Findings) != 2 || len(doc.Summary.Improvements) != 1 {
		t.Fatalf("summary = %+v", doc.Summary)
	}
	if doc.Summary.Improvements[0].Pct != 94.9 {
		t.Fatalf("pct = %v", doc.Summary.Improvements[0].Pct)
	}
}

func TestPresenterHTML(t *testing.T) {
	dir := t.TempDir()
	if _, err := newPresenter(dir).Write(sampleReport()); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dir, present.SummaryHTMLFile))
	if err != nil {
		t.Fatalf("read html: %v", err)
	}
	html := string(data)
	for _, want := range []string{
		"CBS Performance Test Results Summary",
		"CBS 20Mbps",
		"Video Stream 1",
		"log file missing",
		"94.9",
		"baseline CBS Disabled",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("html missing %q", want)
		}
	}
}

func TestPresenterSkipsEmptyCharts(t *testing.T) {
	r := types.ComparisonReport{
		ID:           "run-2",
		LogTimestamp: "ts",
		GeneratedAt:  time.Unix(0, 0).UTC(),
		Scenarios: []types.ScenarioResult{
			{Config: types.ShaperDisabled("scenario1", ""), Absent: true},
			{Config: types.ShaperReserved("scenario2", "", 20), Absent: true},
		},
		Findings: []string{"no data"},
	}
	dir := t.TempDir()
	files, err := newPresenter(dir).Write(r)
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	for _, path := range files {
		if strings.HasSuffix(path, ".png") {
			t.Fatalf("unexpected chart %s", path)
		}
	}
	if len(files) != 3 {
		t.Fatalf("files = %v, want html, csv and json", files)
	}
}

func TestPresenterChartsDisabled(t *testing.T) {
	p := newPresenter(t.TempDir())
	p.Charts = false
	files, err := p.Write(sampleReport())
	if err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(files) != 3 {
		t.Fatalf("files = %v", files)
	}
}

func TestPresenterWriteFailure(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := newPresenter(filepath.Join(blocker, "out")).Write(sampleReport())
	if !reporterrors.HasCode(err, reporterrors.ErrCodeRenderFailed) {
		t.Fatalf("expected RENDER_FAILED, got %v", err)
	}

	_, err = present.New("").Write(sampleReport())
	if !reporterrors.HasCode(err, reporterrors.ErrCodeRenderFailed) {
		t.Fatalf("expected RENDER_FAILED for empty dir, got %v", err)
	}
}
