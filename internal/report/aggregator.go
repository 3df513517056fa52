// Package report joins per-scenario metrics into a ComparisonReport and
// derives the improvement figures and findings shown to operators.
package report

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/saveenergy/cbsreport/internal/logging"
	"github.com/saveenergy/cbsreport/internal/registry"
	reporterrors "github.com/saveenergy/cbsreport/pkg/errors"
	"github.com/saveenergy/cbsreport/pkg/types"
)

const DefaultTopFindings = 3

type Options struct {
	ID           string
	LogTimestamp string
	Now          func() time.Time
	PortLabels   map[int]string
	TopFindings  int
}

// Aggregate never fails: absent scenarios and an absent baseline are
// reported through Absent flags and findings. Scenarios keep registry order.
func Aggregate(reg *registry.Registry, records map[string]*types.MetricsRecord, opts Options) types.ComparisonReport {
	configs := reg.Scenarios()
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	top := opts.TopFindings
	if top <= 0 {
		top = DefaultTopFindings
	}

	report := types.ComparisonReport{
		ID:           id,
		LogTimestamp: opts.LogTimestamp,
		GeneratedAt:  now().UTC(),
		Scenarios:    make([]types.ScenarioResult, 0, len(configs)),
		Improvements: []types.Improvement{},
		Findings:     []string{},
	}

	for _, cfg := range configs {
		rec := records[cfg.ID]
		result := types.ScenarioResult{Config: cfg, Metrics: rec, Absent: rec == nil}
		report.Scenarios = append(report.Scenarios, result)
		if result.Absent {
			logging.Warn("scenario has no metrics", logging.Scenario(cfg.ID))
			report.Findings = append(report.Findings,
				fmt.Sprintf("Scenario %s (%s) is missing: no usable log data, metrics unavailable.", cfg.ID, cfg.DisplayName()))
		}
	}

	baseline, ok := reg.Baseline()
	switch {
	case !ok:
		logging.Warn("no baseline scenario configured; improvements omitted")
		report.Findings = append(report.Findings,
			"No baseline scenario (shaper disabled) is configured; improvement figures are omitted.")
		return report
	case records[baseline.ID] == nil:
		logging.Warn("improvements omitted", logging.Err(reporterrors.ErrAggregationInconsistency(baseline.ID)))
		report.Findings = append(report.Findings,
			fmt.Sprintf("Baseline scenario %s (%s) is missing; improvement figures are omitted.", baseline.ID, baseline.DisplayName()))
		return report
	}
	report.BaselineID = baseline.ID

	for _, s := range report.Scenarios {
		if !s.Config.ShapingEnabled || s.Absent {
			continue
		}
		report.Improvements = append(report.Improvements, Improvements(baseline.ID, records[baseline.ID], s.Config.ID, s.Metrics)...)
	}

	for _, imp := range TopImprovements(report.Improvements, top) {
		name := imp.ScenarioID
		if s, ok := reg.Get(imp.ScenarioID); ok {
			name = s.DisplayName()
		}
		report.Findings = append(report.Findings, describe(imp, name, portLabel(opts.PortLabels, imp.Port)))
	}
	if len(report.Improvements) == 0 {
		report.Findings = append(report.Findings,
			"No metric is available in both the baseline and a shaped scenario; nothing to compare.")
	}
	return report
}

// Improvements compares every port and metric present on both sides. A zero
// baseline value has no relative change and is left out.
func Improvements(baselineID string, baseline *types.MetricsRecord, shapedID string, shaped *types.MetricsRecord) []types.Improvement {
	if baseline == nil || shaped == nil {
		return nil
	}

	var out []types.Improvement
	for _, port := range shaped.PortIDs() {
		bp, ok := baseline.Ports[port]
		if !ok {
			continue
		}
		sp := shaped.Ports[port]
		for _, m := range types.AllMetrics {
			b, okB := bp.Value(m)
			s, okS := sp.Value(m)
			if !okB || !okS || b == 0 {
				continue
			}
			out = append(out, types.Improvement{
				ScenarioID: shapedID,
				Port:       port,
				Metric:     m,
				Baseline:   b,
				Shaped:     s,
				Pct:        ImprovementPct(m, b, s),
			})
		}
	}
	return out
}

// ImprovementPct is positive when the shaped scenario is better.
func ImprovementPct(m types.Metric, baseline, shaped float64) float64 {
	if m.HigherIsBetter() {
		return (shaped - baseline) / baseline * 100
	}
	return (baseline - shaped) / baseline * 100
}

// TopImprovements orders by absolute change, largest first. Ties keep their
// scenario, port and metric order.
func TopImprovements(imps []types.Improvement, n int) []types.Improvement {
	sorted := make([]types.Improvement, len(imps))
	copy(sorted, imps)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Pct) > math.Abs(sorted[j].Pct)
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

func describe(imp types.Improvement, scenario, port string) string {
	verb := "improved"
	if imp.Pct < 0 {
		verb = "worsened"
	}
	return fmt.Sprintf("%s %s %s on %s by %.1f%% (%.2f %s → %.2f %s).",
		scenario, verb, imp.Metric.Label(), port, math.Abs(imp.Pct),
		imp.Baseline, imp.Metric.Unit(), imp.Shaped, imp.Metric.Unit())
}

func portLabel(labels map[int]string, port int) string {
	if l, ok := labels[port]; ok && l != "" {
		return l
	}
	return fmt.Sprintf("port %d", port)
}
