package app

import (
	"bufio"
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

	"github.com/skybrief/skybrief/internal/bsky"
	"github.com/skybrief/skybrief/internal/cli"
	"github.com/skybrief/skybrief/internal/db"
	"github.com/skybrief/skybrief/internal/enrich"
	"github.com/skybrief/skybrief/internal/fetch"
	"github.com/skybrief/skybrief/internal/ingest"
	"github.com/skybrief/skybrief/internal/links"
	"github.com/skybrief/skybrief/internal/logging"
	"github.com/skybrief/skybrief/internal/newsdetect"
	"github.com/skybrief/skybrief/internal/pipeline"
	"github.com/skybrief/skybrief/internal/queue"
)

func runConsume(args []string) int {
	fs := flag.NewFlagSet("consume", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	file := fs.String("file", "-", "NDJSON event file to consume, - for stdin")
	workers := fs.Int("workers", 0, "Worker pool size (0 uses SB_WORKER_COUNT)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "consume does not accept positional arguments")
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
		logger.Error().Err(err).Msg("consume failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	events := queue.NewMemory(0)

	workerCount := *workers
	if workerCount <= 0 {
		workerCount = cfg.WorkerCount
	}

	appView := bsky.NewClient(cfg.BskyAPIBase, cfg.BskyAPITimeout)
	extractor := links.NewExtractor(appView, logger)
	fetcher := fetch.NewFetcher(cfg.FetchTimeout)
	classifier := newsdetect.NewClassifier(logger)
	backend := enrich.NewClient(cfg.EnrichURL, cfg.EnrichTimeout)
	enricher := enrich.NewService(pool, backend, cfg.EmbeddingModel, logger)
	profiles := ingest.NewProfileSyncer(pool, appView, logger)

	consumer, err := pipeline.NewConsumer(
		events,
		extractor,
		fetcher,
		classifier,
		enricher,
		profiles,
		func(scheduler ingest.Scheduler) *ingest.Coordinator {
			return ingest.NewCoordinator(pool, scheduler, logger)
		},
		pipeline.Options{
			WorkerCount:   workerCount,
			RetryAttempts: cfg.RetryAttempts,
		},
		logger,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build consumer: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	// Load events alongside the consumer so a bounded queue never blocks
	// the loader against an idle consumer. Closing the queue ends Run once
	// the backlog drains.
	loadErr := make(chan error, 1)
	go func() {
		enqueued, err := enqueueEvents(ctx, *file, events)
		logger.Info().Int("events", enqueued).Msg("events enqueued")
		_ = events.Close()
		loadErr <- err
	}()

	if err := consumer.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("consumer failed")
		fmt.Fprintf(os.Stderr, "Consumer failed: %v\n", err)
		return 1
	}
	if err := <-loadErr; err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read events: %v\n", err)
		return 1
	}
	return 0
}

// enqueueEvents reads newline-delimited JSON events and loads them onto
// the queue. Blank lines are skipped; a line that is not valid JSON fails
// the whole load so a truncated file is noticed up front.
func enqueueEvents(ctx context.Context, path string, events queue.Queue) (int, error) {
	var reader io.Reader
	if path == "-" || path == "" {
		reader = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		reader = f
	}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	count := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !json.Valid(line) {
			return count, fmt.Errorf("line %d is not valid JSON", count+1)
		}
		payload := make(json.RawMessage, len(line))
		copy(payload, line)
		if err := events.Enqueue(ctx, payload); err != nil {
			return count, err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}
