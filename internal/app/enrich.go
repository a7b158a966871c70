package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skybrief/skybrief/internal/cli"
	"github.com/skybrief/skybrief/internal/db"
	"github.com/skybrief/skybrief/internal/enrich"
	"github.com/skybrief/skybrief/internal/logging"
	"github.com/skybrief/skybrief/internal/queue"
)

func runEnrich(args []string) int {
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	limit := fs.Int("limit", 100, "Maximum number of pending articles to process")
	article := fs.Int64("article", 0, "Process only this article id")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "enrich does not accept positional arguments")
		return 2
	}
	if *limit < 1 {
		fmt.Fprintln(os.Stderr, "--limit must be >= 1")
		return 2
	}

	cfg, err := loadConfig(envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	dbCtx, dbCancel := context.WithTimeout(context.Background(), 30*time.Second)
	pool, err := db.NewPool(dbCtx, cfg)
	dbCancel()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	backend := enrich.NewClient(cfg.EnrichURL, cfg.EnrichTimeout)
	service := enrich.NewService(pool, backend, cfg.EmbeddingModel, logger)

	var articleIDs []int64
	if *article > 0 {
		articleIDs = []int64{*article}
	} else {
		articleIDs, err = pool.ListArticlesPendingEnrichment(ctx, *limit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list pending articles: %v\n", err)
			return 1
		}
	}

	if len(articleIDs) == 0 {
		logger.Info().Msg("no articles pending enrichment")
		return 0
	}

	var failed int
	for _, articleID := range articleIDs {
		if ctx.Err() != nil {
			break
		}
		err := queue.Retry(ctx, cfg.RetryAttempts, queue.DefaultRetryBase, func(ctx context.Context) error {
			return service.ProcessArticle(ctx, articleID)
		})
		if err != nil {
			failed++
			logger.Error().Err(err).Int64("article_id", articleID).Msg("article enrichment abandoned")
		}
	}

	logger.Info().
		Int("processed", len(articleIDs)-failed).
		Int("failed", failed).
		Msg("enrichment run finished")
	if failed > 0 {
		return 1
	}
	return 0
}
