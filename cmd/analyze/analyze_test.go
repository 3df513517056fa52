package analyze

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/saveenergy/cbsreport/internal/config"
	"github.com/saveenergy/cbsreport/internal/present"
	"github.com/saveenergy/cbsreport/internal/results"
	reporterrors "github.com/saveenergy/cbsreport/pkg/errors"
	"github.com/saveenergy/cbsreport/pkg/types"
)

const stamp = "20250601_100000"

func writeLog(t *testing.T, dir, id string, perSecond, dropped uint64, latency float64) {
	t.Helper()
	var b strings.Builder
	for i := 0; i < 6; i++ {
		tx := uint64(i) * perSecond
		drop := uint64(0)
		if i == 5 {
			drop = dropped
		}
		fmt.Fprintf(&b, "ts=%d p1.rx_packets=%d p1.tx_packets=%d p1.rx_dropped=%d p1.tx_dropped=0 p1.latency_ms=%g\n",
			1700000000+i, tx-drop, tx, drop, latency+float64(i%2))
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_stats_%s.log", id, stamp))
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		t.Fatal(err)
	}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Ports = []int{1}
	cfg.Charts = false
	cfg.OutputDir = filepath.Join(t.TempDir(), "out")
	return cfg
}

func TestExecute(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "scenario1", 1000, 250, 45)
	writeLog(t, dir, "scenario2", 1250, 0, 2)

	cfg := testConfig(t)
	cfg.HistoryDB = filepath.Join(t.TempDir(), "history.db")

	res, err := Execute(context.Background(), cfg, dir, stamp)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if res.Report.BaselineID != "scenario1" {
		t.Fatalf("baseline = %q", res.Report.BaselineID)
	}
	if res.Report.AbsentCount() != 1 {
		t.Fatalf("absent = %d, want 1 (scenario3)", res.Report.AbsentCount())
	}
	if len(res.Report.Improvements) == 0 {
		t.Fatal("expected improvements for scenario2")
	}
	if len(res.Files) != 3 {
		t.Fatalf("files = %v", res.Files)
	}
	if _, err := os.Stat(filepath.Join(cfg.OutputDir, present.ReportJSONFile)); err != nil {
		t.Fatalf("json report missing: %v", err)
	}

	store, err := results.New(cfg.HistoryDB, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	saved, err := store.Get(res.Report.ID)
	if err != nil || saved == nil {
		t.Fatalf("history entry = %v, %v", saved, err)
	}
}

func TestExecuteDefaultsOutputToResultsDir(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "scenario1", 1000, 0, 10)
	cfg := testConfig(t)
	cfg.OutputDir = ""

	res, err := Execute(context.Background(), cfg, dir, stamp)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	for _, f := range res.Files {
		if filepath.Dir(f) != dir {
			t.Fatalf("file %s not in results dir", f)
		}
	}
}

func TestExecuteBadScenarioFile(t *testing.T) {
	cfg := testConfig(t)
	cfg.ScenarioFile = filepath.Join(t.TempDir(), "missing.yaml")
	_, err := Execute(context.Background(), cfg, t.TempDir(), stamp)
	if !reporterrors.HasCode(err, reporterrors.ErrCodeInvalidConfig) {
		t.Fatalf("expected INVALID_CONFIG, got %v", err)
	}
}

func TestExecuteCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Execute(ctx, testConfig(t), t.TempDir(), stamp)
	if !reporterrors.IsContextError(err) {
		t.Fatalf("expected context error, got %v", err)
	}

	var buf bytes.Buffer
	if code := failureExit(&buf, err); code != exitFailure {
		t.Fatalf("exit = %d, want %d", code, exitFailure)
	}
	if !strings.Contains(buf.String(), "interrupted") {
		t.Fatalf("stderr = %q", buf.String())
	}
}

func TestFailureExit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
		text string
	}{
		{"interrupted", fmt.Errorf("collect scenarios: %w", context.Canceled), exitFailure, "interrupted"},
		{"deadline", context.DeadlineExceeded, exitFailure, "interrupted"},
		{"invalid config", reporterrors.ErrInvalidConfig("load scenarios", errors.New("bad yaml")), exitUsage, "load scenarios"},
		{"render", reporterrors.ErrRenderFailed("write csv", errors.New("disk full")), exitFailure, "disk full"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if got := failureExit(&buf, tt.err); got != tt.want {
				t.Fatalf("exit = %d, want %d", got, tt.want)
			}
			if !strings.Contains(buf.String(), tt.text) {
				t.Fatalf("stderr = %q, want %q", buf.String(), tt.text)
			}
		})
	}
}

func TestSaveHistoryRetriesOnceWhenBusy(t *testing.T) {
	prevFn, prevDelay := saveRunFn, historyRetryDelay
	t.Cleanup(func() { saveRunFn, historyRetryDelay = prevFn, prevDelay })
	historyRetryDelay = 0

	busy := fmt.Errorf("save run: %w", errors.Join(results.ErrStoreRetryable, errors.New("database is locked")))
	tests := []struct {
		name    string
		results []error
		calls   int
		wantErr bool
	}{
		{"busy then ok", []error{busy, nil}, 2, false},
		{"busy twice", []error{busy, busy}, 2, true},
		{"other error not retried", []error{errors.New("disk I/O error")}, 1, true},
		{"ok", []error{nil}, 1, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			saveRunFn = func(*config.Config, types.ComparisonReport) error {
				err := tt.results[calls]
				calls++
				return err
			}
			err := saveHistory(config.DefaultConfig(), types.ComparisonReport{ID: "r"})
			if calls != tt.calls {
				t.Fatalf("calls = %d, want %d", calls, tt.calls)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunUsage(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want int
	}{
		{name: "no args", args: nil, want: exitUsage},
		{name: "one arg", args: []string{"./results"}, want: exitUsage},
		{name: "too many", args: []string{"a", "b", "c"}, want: exitUsage},
		{name: "bad flag", args: []string{"--nope", "a", "b"}, want: exitUsage},
		{name: "bad ports", args: []string{"--ports", "x", t.TempDir(), stamp}, want: exitUsage},
		{name: "bad parallel", args: []string{"--parallel", "0", t.TempDir(), stamp}, want: exitUsage},
		{name: "missing dir", args: []string{filepath.Join(t.TempDir(), "nope"), stamp}, want: exitUsage},
		{name: "help", args: []string{"-h"}, want: exitSuccess},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Run(tt.args, "test"); got != tt.want {
				t.Fatalf("exit = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRunWritesReport(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "scenario1", 1000, 100, 30)
	out := filepath.Join(t.TempDir(), "out")

	code := Run([]string{"--no-charts", "--ports", "1", "--out", out, "--log-level", "error", dir, stamp}, "test")
	if code != exitSuccess {
		t.Fatalf("exit = %d", code)
	}
	for _, name := range []string{present.SummaryHTMLFile, present.SummaryCSVFile, present.ReportJSONFile} {
		if _, err := os.Stat(filepath.Join(out, name)); err != nil {
			t.Fatalf("%s missing: %v", name, err)
		}
	}
}

func TestPrintSummary(t *testing.T) {
	dir := t.TempDir()
	writeLog(t, dir, "scenario1", 1000, 0, 10)
	res, err := Execute(context.Background(), testConfig(t), dir, stamp)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	printSummary(&buf, res, false)
	out := buf.String()
	for _, want := range []string{"scenario1", "(baseline)", "scenario2", "missing", "Findings"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "\033[") {
		t.Fatal("plain summary must not contain escape codes")
	}
}
