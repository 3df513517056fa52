// Package check implements the `cbsreport check` subcommand: verify that
// every scenario of a capture run has a readable statistics log before a
// full analysis is attempted.
package check

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/saveenergy/cbsreport/internal/config"
	"github.com/saveenergy/cbsreport/internal/logging"
	"github.com/saveenergy/cbsreport/internal/pipeline"
	"github.com/saveenergy/cbsreport/internal/registry"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

const (
	statusOK         = "ok"
	statusMissing    = "missing"
	statusUnreadable = "unreadable"
)

// CheckResult is the structured output of cbsreport check.
type CheckResult struct {
	SchemaVersion string          `json:"schema_version"`
	ResultsDir    string          `json:"results_dir"`
	Timestamp     string          `json:"timestamp"`
	Scenarios     []ScenarioCheck `json:"scenarios"`
	Missing       int             `json:"missing"`
	DurationMs    int64           `json:"duration_ms"`
}

type ScenarioCheck struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	LogPath string `json:"log_path"`
	Status  string `json:"status"`
	Samples int    `json:"samples"`
	Skipped int    `json:"skipped"`
	Ports   []int  `json:"ports"`
	Error   string `json:"error,omitempty"`
}

// OK reports whether every scenario log was found and read.
func (r *CheckResult) OK() bool {
	for _, s := range r.Scenarios {
		if s.Status != statusOK {
			return false
		}
	}
	return true
}

var runCheckFn = runCheck

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("cbsreport check", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)

	var (
		configFile   string
		scenarioFile string
		ports        string
		jsonOut      bool
	)
	flagSet.StringVar(&configFile, "config", "", "YAML config file")
	flagSet.StringVar(&scenarioFile, "scenarios", "", "YAML scenario file")
	flagSet.StringVar(&ports, "ports", "", "Comma separated port indexes")
	flagSet.BoolVar(&jsonOut, "json", false, "Output as JSON")
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
	if len(rest) != 2 {
		fmt.Fprintln(os.Stderr, "cbsreport check: expected <results_dir> <timestamp>")
		return exitUsage
	}

	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport check: %v\n", err)
		return exitUsage
	}
	if scenarioFile != "" {
		cfg.ScenarioFile = scenarioFile
	}
	if ports != "" {
		parsed, err := config.ParsePorts(ports)
		if err != nil {
			fmt.Fprintf(os.Stderr, "cbsreport check: invalid -ports %q: %v\n", ports, err)
			return exitUsage
		}
		cfg.Ports = parsed
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport check: %v\n", err)
		return exitUsage
	}
	if l, err := logging.ParseLevel(cfg.LogLevel); err == nil {
		logging.Init(l)
		logging.SetLevel(l)
	}

	start := time.Now()
	result, err := runCheckFn(context.Background(), cfg, rest[0], rest[1])
	if err != nil {
		if jsonOut {
			errResp := map[string]interface{}{
				"schema_version": "1.0",
				"error":          true,
				"code":           "check_failed",
				"message":        err.Error(),
			}
			if encErr := json.NewEncoder(os.Stdout).Encode(errResp); encErr != nil {
				fmt.Fprintf(os.Stderr, "cbsreport check: json encode error: %v\n", encErr)
			}
		} else {
			fmt.Fprintf(os.Stderr, "cbsreport check: error: %v\n", err)
		}
		return exitFailure
	}
	result.DurationMs = time.Since(start).Milliseconds()

	if jsonOut {
		if encErr := json.NewEncoder(os.Stdout).Encode(result); encErr != nil {
			fmt.Fprintf(os.Stderr, "cbsreport check: json encode error: %v\n", encErr)
			return exitFailure
		}
	} else {
		printHuman(os.Stdout, result)
	}

	if !result.OK() {
		return exitFailure
	}
	return exitSuccess
}

func runCheck(ctx context.Context, cfg *config.Config, resultsDir, timestamp string) (*CheckResult, error) {
	reg, err := registry.Load(cfg.ScenarioFile)
	if err != nil {
		return nil, err
	}
	outcomes, err := pipeline.New(cfg).Collect(ctx, reg.Scenarios(), resultsDir, timestamp)
	if err != nil {
		return nil, err
	}

	result := &CheckResult{
		SchemaVersion: "1.0",
		ResultsDir:    resultsDir,
		Timestamp:     timestamp,
		Scenarios:     make([]ScenarioCheck, 0, len(outcomes)),
	}
	for _, o := range outcomes {
		sc := ScenarioCheck{
			ID:      o.Config.ID,
			Name:    o.Config.DisplayName(),
			LogPath: o.LogPath,
			Status:  statusOK,
			Ports:   []int{},
		}
		switch {
		case o.Missing():
			sc.Status = statusMissing
			result.Missing++
		case o.Err != nil:
			sc.Status = statusUnreadable
			sc.Error = o.Err.Error()
		default:
			sc.Samples = o.Series.Len()
			sc.Skipped = o.Series.Skipped
			sc.Ports = o.Series.PortIDs()
		}
		result.Scenarios = append(result.Scenarios, sc)
	}
	return result, nil
}

func printHuman(w io.Writer, r *CheckResult) {
	for _, s := range r.Scenarios {
		switch s.Status {
		case statusOK:
			fmt.Fprintf(w, "  ok       %-12s %d samples, %d skipped lines, ports %v\n", s.ID, s.Samples, s.Skipped, s.Ports)
		case statusMissing:
			fmt.Fprintf(w, "  missing  %-12s %s\n", s.ID, s.LogPath)
		default:
			fmt.Fprintf(w, "  error    %-12s %s\n", s.ID, s.Error)
		}
	}
	if r.OK() {
		fmt.Fprintf(w, "All %d scenario logs readable\n", len(r.Scenarios))
	} else {
		fmt.Fprintf(w, "%d of %d scenario logs missing or unreadable\n", countNotOK(r), len(r.Scenarios))
	}
}

func countNotOK(r *CheckResult) int {
	n := 0
	for _, s := range r.Scenarios {
		if s.Status != statusOK {
			n++
		}
	}
	return n
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: cbsreport check [flags] <results_dir> <timestamp>

Verify that every scenario log of a capture run exists and parses.

Flags:
  -h, --help            Show help
  --config string       YAML config file
  --scenarios string    YAML scenario file
  --ports string        Comma separated port indexes
  --json                Output as JSON

Exit codes:
  0   All logs readable
  1   A log is missing or unreadable
  2   Usage or configuration error

Examples:
  cbsreport check ./results 20240101_120000
  cbsreport check --json ./results 20240101_120000
`)
}
