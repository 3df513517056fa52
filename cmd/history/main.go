// Package history implements the `cbsreport history` subcommand: list the
// runs kept in the SQLite history or show one stored report.
package history

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/saveenergy/cbsreport/internal/config"
	"github.com/saveenergy/cbsreport/internal/present"
	"github.com/saveenergy/cbsreport/internal/results"
)

var (
	exitSuccess = 0
	exitFailure = 1
	exitUsage   = 2
)

func Run(args []string, version string) int {
	flagSet := flag.NewFlagSet("cbsreport history", flag.ContinueOnError)
	flagSet.SetOutput(os.Stderr)

	var (
		dbPath  string
		limit   int
		show    string
		jsonOut bool
	)
	flagSet.StringVar(&dbPath, "history-db", "", "SQLite history file (default: $CBS_HISTORY_DB)")
	flagSet.IntVar(&limit, "n", 20, "Number of runs to list")
	flagSet.StringVar(&show, "show", "", "Print the stored report with this ID")
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
	if flagSet.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "cbsreport history: unexpected positional arguments")
		return exitUsage
	}

	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport history: %v\n", err)
		return exitUsage
	}
	if dbPath == "" {
		dbPath = cfg.HistoryDB
	}
	if dbPath == "" {
		fmt.Fprintln(os.Stderr, "cbsreport history: no history database (use -history-db or CBS_HISTORY_DB)")
		return exitUsage
	}
	if _, err := os.Stat(dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport history: %v\n", err)
		return exitFailure
	}

	store, err := results.New(dbPath, cfg.MaxStoredRuns)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport history: %v\n", err)
		return exitFailure
	}
	defer store.Close()

	if show != "" {
		return showRun(os.Stdout, store, show)
	}

	runs, err := store.List(limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport history: %v\n", err)
		return exitFailure
	}
	if jsonOut {
		if err := json.NewEncoder(os.Stdout).Encode(runs); err != nil {
			fmt.Fprintf(os.Stderr, "cbsreport history: json encode error: %v\n", err)
			return exitFailure
		}
		return exitSuccess
	}
	printRuns(os.Stdout, runs)
	return exitSuccess
}

func showRun(w io.Writer, store *results.Store, id string) int {
	rep, err := store.Get(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport history: %v\n", err)
		return exitFailure
	}
	if rep == nil {
		fmt.Fprintf(os.Stderr, "cbsreport history: run %q not found\n", id)
		return exitFailure
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(present.NewReportDocument(*rep)); err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport history: json encode error: %v\n", err)
		return exitFailure
	}
	return exitSuccess
}

func printRuns(w io.Writer, runs []results.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs stored")
		return
	}
	fmt.Fprintf(w, "%-36s  %-20s  %-20s  %s\n", "ID", "RUN", "GENERATED", "SCENARIOS")
	for _, r := range runs {
		scenarios := fmt.Sprintf("%d", r.ScenarioCount)
		if r.AbsentCount > 0 {
			scenarios = fmt.Sprintf("%d (%d absent)", r.ScenarioCount, r.AbsentCount)
		}
		fmt.Fprintf(w, "%-36s  %-20s  %-20s  %s\n",
			r.ID, r.LogTimestamp, r.GeneratedAt.Local().Format(time.DateTime), scenarios)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintf(w, `Usage: cbsreport history [flags]

List analysis runs stored in the history database.

Flags:
  -h, --help            Show help
  --history-db string   SQLite history file (default: $CBS_HISTORY_DB)
  -n int                Number of runs to list (default: 20)
  --show string         Print the stored report with this ID as JSON
  --json                Output the listing as JSON

Examples:
  cbsreport history --history-db runs.db
  cbsreport history --history-db runs.db --show 3f1c...
`)
}
