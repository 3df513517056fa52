// Package pipeline runs parse and compute for every registered scenario and
// aggregates the results into a ComparisonReport.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/saveenergy/cbsreport/internal/config"
	"github.com/saveenergy/cbsreport/internal/logging"
	"github.com/saveenergy/cbsreport/internal/metrics"
	"github.com/saveenergy/cbsreport/internal/parser"
	"github.com/saveenergy/cbsreport/internal/registry"
	"github.com/saveenergy/cbsreport/internal/report"
	"github.com/saveenergy/cbsreport/pkg/types"
)

type Pipeline struct {
	Parser     *parser.Parser
	Calculator *metrics.Calculator
	Parallel   int
}

// New builds a pipeline from the interval, port, frame size and parallelism
// settings of cfg.
func New(cfg *config.Config) *Pipeline {
	calc := metrics.NewCalculator()
	calc.FrameSizeBytes = cfg.FrameSizeBytes
	return &Pipeline{
		Parser:     parser.New(cfg.Interval, cfg.Ports),
		Calculator: calc,
		Parallel:   cfg.Parallel,
	}
}

// Outcome is the per-scenario result of Collect. Series and Metrics are nil
// when the log could not be read; Err then says why.
type Outcome struct {
	Config  types.ScenarioConfig
	LogPath string
	Series  *types.TimeSeriesRecord
	Metrics *types.MetricsRecord
	Err     error
}

func (o Outcome) Missing() bool {
	return errors.Is(o.Err, parser.ErrNotFound)
}

// Collect parses and computes every scenario. Outcomes are in scenario order
// whatever the execution order. Only context cancellation is returned as an
// error; per-scenario failures are recorded on the Outcome.
func (p *Pipeline) Collect(ctx context.Context, scenarios []types.ScenarioConfig, resultsDir, timestamp string) ([]Outcome, error) {
	outcomes := make([]Outcome, len(scenarios))

	limit := p.Parallel
	if limit <= 0 {
		limit = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, s := range scenarios {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			outcomes[i] = p.process(s, registry.LogPath(resultsDir, timestamp, s))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("collect scenarios: %w", err)
	}
	return outcomes, nil
}

func (p *Pipeline) process(s types.ScenarioConfig, path string) Outcome {
	out := Outcome{Config: s, LogPath: path}

	series, err := p.Parser.Parse(path)
	if err != nil {
		out.Err = err
		if errors.Is(err, parser.ErrNotFound) {
			logging.Warn("log file not found", logging.Scenario(s.ID), logging.Field{Key: "path", Value: path})
		} else {
			logging.Warn("log file unreadable", logging.Scenario(s.ID), logging.Err(err))
		}
		return out
	}
	series.ScenarioID = s.ID
	out.Series = series

	rec := p.Calculator.Compute(series)
	out.Metrics = &rec

	logging.Info("scenario analyzed",
		logging.Scenario(s.ID),
		logging.Field{Key: "samples", Value: series.Len()},
		logging.Field{Key: "skipped", Value: series.Skipped},
		logging.Field{Key: "mode", Value: string(series.Mode)})
	return out
}

// Run is Collect followed by report.Aggregate.
func (p *Pipeline) Run(ctx context.Context, reg *registry.Registry, resultsDir, timestamp string, opts report.Options) (types.ComparisonReport, []Outcome, error) {
	scenarios := reg.Scenarios()
	outcomes, err := p.Collect(ctx, scenarios, resultsDir, timestamp)
	if err != nil {
		return types.ComparisonReport{}, nil, err
	}

	records := make(map[string]*types.MetricsRecord, len(outcomes))
	for _, o := range outcomes {
		if o.Metrics != nil {
			records[o.Config.ID] = o.Metrics
		}
	}
	if opts.LogTimestamp == "" {
		opts.LogTimestamp = timestamp
	}
	return report.Aggregate(reg, records, opts), outcomes, nil
}
