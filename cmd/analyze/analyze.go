// Package analyze implements the `cbsreport analyze` subcommand: parse the
// statistics logs of one capture run, compare the scenarios against the
// baseline and write charts, tables and a JSON report.
package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/saveenergy/cbsreport/internal/config"
	"github.com/saveenergy/cbsreport/internal/logging"
	"github.com/saveenergy/cbsreport/internal/pipeline"
	"github.com/saveenergy/cbsreport/internal/present"
	"github.com/saveenergy/cbsreport/internal/registry"
	"github.com/saveenergy/cbsreport/internal/report"
	"github.com/saveenergy/cbsreport/internal/results"
	reporterrors "github.com/saveenergy/cbsreport/pkg/errors"
	"github.com/saveenergy/cbsreport/pkg/types"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

var (
	saveRunFn         = saveRun
	historyRetryDelay = 250 * time.Millisecond
)

// Result is what one analysis produced. Files lists the artifacts written,
// which may be partial when Execute returns an error.
type Result struct {
	Report   types.ComparisonReport
	Outcomes []pipeline.Outcome
	Files    []string
}

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("cbsreport analyze", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)

	var (
		configFile   string
		scenarioFile string
		outDir       string
		ports        string
		interval     time.Duration
		parallel     int
		jsonOut      bool
		noCharts     bool
		historyDB    string
		logLevel     string
	)
	flagSet.StringVar(&configFile, "config", "", "YAML config file")
	flagSet.StringVar(&scenarioFile, "scenarios", "", "YAML scenario file (default: built-in three scenarios)")
	flagSet.StringVar(&outDir, "out", "", "Output directory (default: results directory)")
	flagSet.StringVar(&ports, "ports", "", "Comma separated port indexes")
	flagSet.DurationVar(&interval, "interval", time.Second, "Sampling interval of the logs")
	flagSet.IntVar(&parallel, "parallel", 1, "Scenarios analyzed concurrently")
	flagSet.BoolVar(&jsonOut, "json", false, "Print the report as JSON")
	flagSet.BoolVar(&noCharts, "no-charts", false, "Skip PNG charts")
	flagSet.StringVar(&historyDB, "history-db", "", "SQLite file for run history")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error")
	help := flagSet.Bool("help", false, "Show help")
	flagSet.BoolVar(help, "h", false, "Show help (short)")

	if err := flagSet.Parse(args); err != nil {
		return exitUsage
	}
	if *help {
		printUsage(os.Stdout)
		return exitSuccess
	}

	rest := flagSet.Args()
	if len(rest) < 2 {
		fmt.Fprintln(os.Stderr, "cbsreport analyze: results directory and timestamp are required")
		printUsage(os.Stderr)
		return exitUsage
	}
	if len(rest) > 2 {
		fmt.Fprintln(os.Stderr, "cbsreport analyze: too many positional arguments")
		return exitUsage
	}
	resultsDir, timestamp := rest[0], rest[1]

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport analyze: %v\n", err)
		return exitUsage
	}
	var flagErr error
	flagSet.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "scenarios":
			cfg.ScenarioFile = scenarioFile
		case "out":
			cfg.OutputDir = outDir
		case "ports":
			parsed, err := config.ParsePorts(ports)
			if err != nil {
				flagErr = fmt.Errorf("invalid -ports %q: %w", ports, err)
				return
			}
			cfg.Ports = parsed
		case "interval":
			cfg.Interval = interval
		case "parallel":
			cfg.Parallel = parallel
		case "no-charts":
			cfg.Charts = !noCharts
		case "history-db":
			cfg.HistoryDB = historyDB
		case "log-level":
			cfg.LogLevel = logLevel
		}
	})
	if flagErr != nil {
		fmt.Fprintf(os.Stderr, "cbsreport analyze: %v\n", flagErr)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport analyze: %v\n", reporterrors.ErrInvalidConfig("invalid configuration", err))
		return exitUsage
	}
	initLogging(cfg.LogLevel)
	if cfg.LogFile != "" {
		logFile := logging.TeeToFile(cfg.LogFile)
		defer logFile.Close()
	}

	if st, err := os.Stat(resultsDir); err != nil || !st.IsDir() {
		fmt.Fprintf(os.Stderr, "cbsreport analyze: results directory %q not found\n", resultsDir)
		return exitUsage
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logging.Info("Analyzing run",
		logging.Field{Key: "version", Value: version},
		logging.Field{Key: "dir", Value: resultsDir},
		logging.Field{Key: "timestamp", Value: timestamp})

	res, err := Execute(ctx, cfg, resultsDir, timestamp)
	if err != nil {
		return failureExit(os.Stderr, err)
	}

	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(present.NewReportDocument(res.Report)); err != nil {
			fmt.Fprintf(os.Stderr, "cbsreport analyze: json encode error: %v\n", err)
			return exitFailure
		}
		return exitSuccess
	}
	printSummary(os.Stdout, res, term.IsTerminal(int(os.Stdout.Fd())))
	return exitSuccess
}

// Execute analyzes one capture run with cfg and writes its artifacts. The
// history store is updated when cfg.HistoryDB is set; a history failure is
// logged but does not fail the run.
func Execute(ctx context.Context, cfg *config.Config, resultsDir, timestamp string) (*Result, error) {
	reg, err := registry.Load(cfg.ScenarioFile)
	if err != nil {
		return nil, reporterrors.ErrInvalidConfig("load scenarios", err)
	}

	rep, outcomes, err := pipeline.New(cfg).Run(ctx, reg, resultsDir, timestamp, report.Options{
		LogTimestamp: timestamp,
		PortLabels:   cfg.PortLabels,
		TopFindings:  cfg.TopFindings,
	})
	if err != nil {
		return nil, err
	}
	res := &Result{Report: rep, Outcomes: outcomes}

	if cfg.HistoryDB != "" {
		if err := saveHistory(cfg, rep); err != nil {
			logging.Warn("History not saved", logging.Err(err),
				logging.Field{Key: "db", Value: cfg.HistoryDB})
		}
	}

	outDir := cfg.OutputDir
	if outDir == "" {
		outDir = resultsDir
	}
	p := &present.Presenter{
		OutputDir:        outDir,
		PortLabels:       cfg.PortLabels,
		LinkCapacityMbps: cfg.LinkCapacityMbps,
		IngressPort:      cfg.IngressPort,
		Charts:           cfg.Charts,
	}
	files, err := p.Write(rep)
	res.Files = files
	if err != nil {
		return res, err
	}
	return res, nil
}

// failureExit reports an Execute error and returns the exit code for it.
func failureExit(w io.Writer, err error) int {
	switch {
	case reporterrors.IsContextError(err):
		logging.Warn("Analysis interrupted", logging.Err(err))
		fmt.Fprintln(w, "cbsreport analyze: interrupted, no report written")
		return exitFailure
	case reporterrors.HasCode(err, reporterrors.ErrCodeInvalidConfig):
		fmt.Fprintf(w, "cbsreport analyze: error: %v\n", err)
		return exitUsage
	}
	logging.Error("Analysis failed", logging.Err(err))
	fmt.Fprintf(w, "cbsreport analyze: error: %v\n", err)
	return exitFailure
}

// saveHistory retries once when the database is locked by another writer.
func saveHistory(cfg *config.Config, rep types.ComparisonReport) error {
	err := saveRunFn(cfg, rep)
	if errors.Is(err, results.ErrStoreRetryable) {
		logging.Debug("History store busy, retrying",
			logging.Field{Key: "db", Value: cfg.HistoryDB},
			logging.Field{Key: "delay", Value: historyRetryDelay})
		time.Sleep(historyRetryDelay)
		err = saveRunFn(cfg, rep)
	}
	return err
}

func saveRun(cfg *config.Config, rep types.ComparisonReport) error {
	store, err := results.New(cfg.HistoryDB, cfg.MaxStoredRuns)
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(rep)
}

func initLogging(level string) {
	l, err := logging.ParseLevel(level)
	if err != nil {
		l = logging.LevelInfo
	}
	logging.Init(l)
	logging.SetLevel(l)
}

func printSummary(w io.Writer, res *Result, color bool) {
	r := res.Report
	heading := func(s string) string {
		if color {
			return "\033[1m" + s + "\033[0m"
		}
		return s
	}

	fmt.Fprintf(w, "%s\n", heading(fmt.Sprintf("CBS report %s (run %s)", r.ID, r.LogTimestamp)))
	for _, o := range res.Outcomes {
		name := o.Config.DisplayName()
		switch {
		case o.Missing():
			status := "missing"
			if color {
				status = "\033[31mmissing\033[0m"
			}
			fmt.Fprintf(w, "  %-12s %-16s %s\n", o.Config.ID, name, status)
		case o.Err != nil:
			status := "unreadable"
			if color {
				status = "\033[31munreadable\033[0m"
			}
			fmt.Fprintf(w, "  %-12s %-16s %s: %v\n", o.Config.ID, name, status, o.Err)
		default:
			marker := ""
			if o.Config.ID == r.BaselineID {
				marker = " (baseline)"
			}
			fmt.Fprintf(w, "  %-12s %-16s %d samples, %d ports%s\n",
				o.Config.ID, name, o.Series.Len(), len(o.Metrics.Ports), marker)
		}
	}

	fmt.Fprintf(w, "\n%s\n", heading("Findings"))
	for _, f := range r.Findings {
		fmt.Fprintf(w, "  - %s\n", f)
	}
	if len(res.Files) > 0 {
		fmt.Fprintf(w, "\nWrote %d files\n", len(res.Files))
		for _, f := range res.Files {
			fmt.Fprintf(w, "  %s\n", f)
		}
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: cbsreport analyze [flags] <results_dir> <timestamp>

Parse <results_dir>/<scenario>_stats_<timestamp>.log for every scenario,
compare shaped scenarios against the baseline and write the report.

Flags:
  -h, --help            Show help
  --config string       YAML config file
  --scenarios string    YAML scenario file (default: CBS disabled, 20 and 30 Mbps)
  --out string          Output directory (default: results_dir)
  --ports string        Comma separated port indexes (default: 0,1,2,3)
  --interval duration   Sampling interval of the logs (default: 1s)
  --parallel int        Scenarios analyzed concurrently (default: 1)
  --json                Print the report as JSON
  --no-charts           Skip PNG charts
  --history-db string   SQLite file for run history
  --log-level string    debug, info, warn or error (default: info)

Exit codes:
  0   Report written
  1   Report could not be written
  2   Usage or configuration error

Examples:
  cbsreport analyze ./results 20240101_120000
  cbsreport analyze --parallel 3 --history-db runs.db ./results 20240101_120000
  cbsreport analyze --json --no-charts ./results 20240101_120000
`)
}
