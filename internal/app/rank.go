package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/skybrief/skybrief/internal/cli"
	"github.com/skybrief/skybrief/internal/logging"
	"github.com/skybrief/skybrief/internal/rank"
)

func runRank(args []string) int {
	fs := flag.NewFlagSet("rank", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	limit := fs.Int("limit", rank.DefaultLimit, "Maximum feed entries")
	sources := fs.String("sources", "", "Comma-separated source ids for the network view")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "rank does not accept positional arguments")
		return 2
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 1")
		return 2
	}

	sourceIDs, err := parseSourceIDFlag(*sources)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	ctx, cancel, cfg, pool, err := connectPool(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer pool.Close()

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	engine := rank.NewEngine(pool, logger)

	var feed []rank.RankedArticle
	if len(sourceIDs) > 0 {
		feed, err = engine.NetworkFeed(ctx, sourceIDs, *limit)
	} else {
		feed, err = engine.TopFeed(ctx, *limit)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to rank articles: %v\n", err)
		return 1
	}

	if err := printJSON(feed); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
		return 1
	}
	return 0
}
