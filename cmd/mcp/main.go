// Package mcp implements the `cbsreport mcp` subcommand, an MCP (Model
// Context Protocol) server over stdio. Agents spawn this process to analyze
// capture runs and browse stored reports.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/saveenergy/cbsreport/cmd/analyze"
	"github.com/saveenergy/cbsreport/internal/config"
	"github.com/saveenergy/cbsreport/internal/logging"
	"github.com/saveenergy/cbsreport/internal/present"
	"github.com/saveenergy/cbsreport/internal/results"
)

const (
	defaultListLimit = 20
	maxListLimit     = 500
	maxParallel      = 16
)

// ToolDefinitions returns the tools served by Run.
func ToolDefinitions() []mcp.Tool {
	return []mcp.Tool{
		mcp.NewTool("analyze_results",
			mcp.WithDescription("Analyze one CBS capture run: parse each scenario's statistics log, compare shaped scenarios against the shaper-disabled baseline and write charts, summary_table.html, summary_results.csv and test_report.json. Returns the report as JSON."),
			mcp.WithString("results_dir",
				mcp.Required(),
				mcp.Description("Directory holding <scenario>_stats_<timestamp>.log files"),
			),
			mcp.WithString("timestamp",
				mcp.Required(),
				mcp.Description("Capture run timestamp used in the log file names"),
			),
			mcp.WithString("output_dir",
				mcp.Description("Where to write artifacts (default: results_dir)"),
			),
			mcp.WithBoolean("charts",
				mcp.Description("Render PNG charts (default: true)"),
			),
			mcp.WithNumber("parallel",
				mcp.Description("Scenarios analyzed concurrently, 1-16 (default: 1)"),
			),
			mcp.WithString("history_db",
				mcp.Description("SQLite file to record the run in (default: $CBS_HISTORY_DB)"),
			),
		),
		mcp.NewTool("list_runs",
			mcp.WithDescription("List analysis runs stored in the history database, newest first. Pass run_id to fetch one stored report."),
			mcp.WithString("history_db",
				mcp.Description("SQLite history file (default: $CBS_HISTORY_DB)"),
			),
			mcp.WithNumber("limit",
				mcp.Description("Maximum runs to list, 1-500 (default: 20)"),
			),
			mcp.WithString("run_id",
				mcp.Description("Return the full report of this run instead of a listing"),
			),
		),
	}
}

// Run starts the MCP stdio server. Blocks until stdin closes.
func Run(version string) int {
	// stdout carries the protocol
	logging.SetOutput(os.Stderr)

	s := server.NewMCPServer(
		"cbsreport",
		version,
		server.WithToolCapabilities(true),
	)

	handlers := map[string]server.ToolHandlerFunc{
		"analyze_results": handleAnalyzeResults,
		"list_runs":       handleListRuns,
	}
	for _, tool := range ToolDefinitions() {
		s.AddTool(tool, handlers[tool.Name])
	}

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "cbsreport mcp: error: %v\n", err)
		return 1
	}
	return 0
}

// --- Tool Handlers ---

func handleAnalyzeResults(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	resultsDir := strings.TrimSpace(req.GetString("results_dir", ""))
	timestamp := strings.TrimSpace(req.GetString("timestamp", ""))
	if resultsDir == "" || timestamp == "" {
		return mcp.NewToolResultError("results_dir and timestamp are required"), nil
	}
	if st, err := os.Stat(resultsDir); err != nil || !st.IsDir() {
		return mcp.NewToolResultError(fmt.Sprintf("results_dir %q is not a directory", resultsDir)), nil
	}

	cfg, err := config.Load("")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Configuration error: %v", err)), nil
	}
	if dir := strings.TrimSpace(req.GetString("output_dir", "")); dir != "" {
		cfg.OutputDir = dir
	}
	if db := strings.TrimSpace(req.GetString("history_db", "")); db != "" {
		cfg.HistoryDB = db
	}
	cfg.Charts = req.GetBool("charts", cfg.Charts)
	parallel := req.GetInt("parallel", cfg.Parallel)
	if parallel < 1 {
		parallel = 1
	}
	if parallel > maxParallel {
		parallel = maxParallel
	}
	cfg.Parallel = parallel
	if err := cfg.Validate(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Configuration error: %v", err)), nil
	}

	res, err := analyze.Execute(ctx, cfg, resultsDir, timestamp)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Analysis failed: %v", err)), nil
	}

	payload := struct {
		present.ReportDocument
		Files []string `json:"files"`
	}{
		ReportDocument: present.NewReportDocument(res.Report),
		Files:          res.Files,
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

func handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cfg := config.DefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Configuration error: %v", err)), nil
	}
	dbPath := strings.TrimSpace(req.GetString("history_db", cfg.HistoryDB))
	if dbPath == "" {
		return mcp.NewToolResultError("history_db is required when CBS_HISTORY_DB is not set"), nil
	}
	if _, err := os.Stat(dbPath); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("History database unavailable: %v", err)), nil
	}

	store, err := results.New(dbPath, cfg.MaxStoredRuns)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("History database unavailable: %v", err)), nil
	}
	defer store.Close()

	var payload interface{}
	if id := strings.TrimSpace(req.GetString("run_id", "")); id != "" {
		rep, err := store.Get(id)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Lookup failed: %v", err)), nil
		}
		if rep == nil {
			return mcp.NewToolResultError(fmt.Sprintf("Run %q not found", id)), nil
		}
		payload = present.NewReportDocument(*rep)
	} else {
		limit := req.GetInt("limit", defaultListLimit)
		if limit < 1 {
			limit = 1
		}
		if limit > maxListLimit {
			limit = maxListLimit
		}
		runs, err := store.List(limit)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("Listing failed: %v", err)), nil
		}
		payload = runs
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("JSON encoding failed: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
