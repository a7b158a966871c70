package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/skybrief/skybrief/internal/cli"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "health does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, _, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	counts, err := pool.CountRows(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query table counts: %v\n", err)
		return 1
	}

	if outputFormat == outputFormatJSON {
		if err := printJSON(counts); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	rows := [][]string{
		{"sources", fmt.Sprintf("%d", counts.Sources)},
		{"posts", fmt.Sprintf("%d", counts.Posts)},
		{"articles", fmt.Sprintf("%d", counts.Articles)},
		{"article_posts", fmt.Sprintf("%d", counts.ArticlePosts)},
		{"article_chunks", fmt.Sprintf("%d", counts.ArticleChunks)},
		{"entities", fmt.Sprintf("%d", counts.Entities)},
		{"article_entities", fmt.Sprintf("%d", counts.ArticleEntities)},
	}
	if err := writeTable([]string{"table", "rows"}, rows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render table: %v\n", err)
		return 1
	}
	return 0
}
