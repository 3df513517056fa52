// Package present renders a ComparisonReport into the files an operator
// reads after a run: PNG charts, an HTML summary, a CSV table and a JSON
// report. Every value written comes from the report.
package present

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/saveenergy/cbsreport/internal/logging"
	reporterrors "github.com/saveenergy/cbsreport/pkg/errors"
	"github.com/saveenergy/cbsreport/pkg/types"
)

const (
	ThroughputChartFile   = "throughput_comparison.png"
	FrameLossChartFile    = "frame_loss_over_time.png"
	LatencyChartFile      = "latency_jitter_comparison.png"
	SummaryHTMLFile       = "summary_table.html"
	SummaryCSVFile        = "summary_results.csv"
	ReportJSONFile        = "test_report.json"
	allocationChartPrefix = "bandwidth_allocation_"
)

// AllocationChartFile names the pie chart written for one scenario.
func AllocationChartFile(scenarioID string) string {
	return allocationChartPrefix + scenarioID + ".png"
}

type Presenter struct {
	OutputDir        string
	PortLabels       map[int]string
	LinkCapacityMbps float64
	// IngressPort is excluded from bandwidth allocation; -1 disables that.
	IngressPort int
	Charts      bool
}

func New(outputDir string) *Presenter {
	return &Presenter{
		OutputDir:        outputDir,
		LinkCapacityMbps: 1000,
		Charts:           true,
	}
}

// Write renders every artifact and returns the paths written, in order.
// Charts without data are skipped. Any I/O failure aborts with a
// RENDER_FAILED error.
func (p *Presenter) Write(r types.ComparisonReport) ([]string, error) {
	if p.OutputDir == "" {
		return nil, reporterrors.ErrRenderFailed("output directory not set", nil)
	}
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return nil, reporterrors.ErrRenderFailed("create output directory", err)
	}

	var written []string
	emit := func(name string, render func() ([]byte, error)) error {
		data, err := render()
		if err != nil {
			return reporterrors.ErrRenderFailed("render "+name, err)
		}
		if data == nil {
			logging.Debug("Artifact skipped, no data", logging.Field{Key: "file", Value: name})
			return nil
		}
		path := filepath.Join(p.OutputDir, name)
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return reporterrors.ErrRenderFailed("write "+name, err)
		}
		written = append(written, path)
		return nil
	}

	if p.Charts {
		if err := emit(ThroughputChartFile, func() ([]byte, error) { return p.throughputChart(r) }); err != nil {
			return written, err
		}
		if err := emit(FrameLossChartFile, func() ([]byte, error) { return p.frameLossChart(r) }); err != nil {
			return written, err
		}
		if err := emit(LatencyChartFile, func() ([]byte, error) { return p.latencyChart(r) }); err != nil {
			return written, err
		}
		for _, s := range r.Scenarios {
			if err := emit(AllocationChartFile(s.Config.ID), func() ([]byte, error) { return p.allocationChart(s) }); err != nil {
				return written, err
			}
		}
	}
	if err := emit(SummaryHTMLFile, func() ([]byte, error) { return p.summaryHTML(r) }); err != nil {
		return written, err
	}
	if err := emit(SummaryCSVFile, func() ([]byte, error) { return p.summaryCSV(r) }); err != nil {
		return written, err
	}
	if err := emit(ReportJSONFile, func() ([]byte, error) { return p.reportJSON(r) }); err != nil {
		return written, err
	}

	logging.Info("Report written",
		logging.Field{Key: "dir", Value: p.OutputDir},
		logging.Field{Key: "files", Value: len(written)})
	return written, nil
}

func (p *Presenter) portLabel(port int) string {
	if label, ok := p.PortLabels[port]; ok && label != "" {
		return label
	}
	return fmt.Sprintf("Port %d", port)
}
