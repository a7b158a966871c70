package app

import (
	"fmt"
	"os"
	"strings"
)

// Run executes the CLI command and returns a process exit code.
func Run(args []string) int {
	if len(args) == 0 {
		printUsage()
		return 2
	}

	switch strings.ToLower(strings.TrimSpace(args[0])) {
	case "help", "--help", "-h":
		printUsage()
		return 0
	case "health":
		return runHealth(args[1:])
	case "consume":
		return runConsume(args[1:])
	case "enrich":
		return runEnrich(args[1:])
	case "rank":
		return runRank(args[1:])
	case "serve":
		return runServe(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		return 2
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "skybrief CLI")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Usage:")
	fmt.Fprintln(os.Stderr, "  skybrief <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  health   Verify database connectivity and print table counts")
	fmt.Fprintln(os.Stderr, "  consume  Process post events from a file or stdin through the pipeline")
	fmt.Fprintln(os.Stderr, "  enrich   Chunk, embed and entity-tag articles pending enrichment")
	fmt.Fprintln(os.Stderr, "  rank     Print the ranked feed as JSON")
	fmt.Fprintln(os.Stderr, "  serve    Start the Echo API server")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Use \"skybrief <command> -h\" for command-specific flags.")
}
