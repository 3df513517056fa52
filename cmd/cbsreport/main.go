package main

import (
	"fmt"
	"os"

	"github.com/saveenergy/cbsreport/cmd/analyze"
	check "github.com/saveenergy/cbsreport/cmd/check"
	"github.com/saveenergy/cbsreport/cmd/history"
	mcpcmd "github.com/saveenergy/cbsreport/cmd/mcp"
)

var version = "dev"

var (
	runAnalyze = analyze.Run
	runCheck   = check.Run
	runHistory = history.Run
	runMCP     = mcpcmd.Run
)

func main() {
	os.Exit(run(os.Args[1:], version))
}

func run(args []string, version string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch args[0] {
	case "analyze":
		return runAnalyze(args[1:], version)
	case "check":
		return runCheck(args[1:], version)
	case "history":
		return runHistory(args[1:], version)
	case "mcp":
		return runMCP(version)
	case "help", "-h", "--help":
		printUsage()
		return 0
	case "version", "--version":
		fmt.Printf("cbsreport %s\n", version)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "cbsreport: unknown command %q\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintf(os.Stdout, `Usage: cbsreport <command> [args]

Commands:
  analyze   Analyze a capture run and write charts, tables and a JSON report
  check     Verify every scenario log of a capture run is present and readable
  history   List stored analysis runs
  mcp       Run as MCP server (stdio transport, for AI agents)

Examples:
  cbsreport analyze ./results 20240101_120000
  cbsreport check ./results 20240101_120000
  cbsreport history --history-db runs.db
  cbsreport mcp
`)
}
