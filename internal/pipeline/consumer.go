package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/enrich"
	"github.com/skybrief/skybrief/internal/fetch"
	"github.com/skybrief/skybrief/internal/ingest"
	"github.com/skybrief/skybrief/internal/links"
	"github.com/skybrief/skybrief/internal/newsdetect"
	"github.com/skybrief/skybrief/internal/queue"
	eventschema "github.com/skybrief/skybrief/schema"
)

// Options tune the consumer. Zero values fall back to sensible defaults.
type Options struct {
	WorkerCount   int
	RetryAttempts int
	RetryBase     time.Duration
}

func (o Options) withDefaults() Options {
	if o.WorkerCount <= 0 {
		o.WorkerCount = 8
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = 4
	}
	if o.RetryBase <= 0 {
		o.RetryBase = queue.DefaultRetryBase
	}
	return o
}

// drainTimeout bounds how long shutdown waits for in-flight units.
const drainTimeout = 30 * time.Second

// Consumer pulls raw events off the queue and dispatches each one as an
// independent unit of work on a worker pool. Enrichment and profile sync
// are never run inline with event processing; they run on a second pool,
// so an event worker never waits on a slot its own pool must free.
type Consumer struct {
	events    queue.Queue
	pool      *ants.Pool
	followups *ants.Pool
	extractor *links.Extractor
	fetcher   *fetch.Fetcher

	classifier  *newsdetect.Classifier
	coordinator *ingest.Coordinator
	enricher    *enrich.Service
	profiles    *ingest.ProfileSyncer

	opts   Options
	logger zerolog.Logger
}

func NewConsumer(
	events queue.Queue,
	extractor *links.Extractor,
	fetcher *fetch.Fetcher,
	classifier *newsdetect.Classifier,
	enricher *enrich.Service,
	profiles *ingest.ProfileSyncer,
	coordinatorFor func(ingest.Scheduler) *ingest.Coordinator,
	opts Options,
	logger zerolog.Logger,
) (*Consumer, error) {
	opts = opts.withDefaults()
	pool, err := ants.NewPool(opts.WorkerCount, ants.WithNonblocking(false))
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	followups, err := ants.NewPool(opts.WorkerCount, ants.WithNonblocking(false))
	if err != nil {
		pool.Release()
		return nil, fmt.Errorf("create follow-up pool: %w", err)
	}

	c := &Consumer{
		events:    events,
		pool:      pool,
		followups: followups,
		extractor: extractor,
		fetcher:   fetcher,

		classifier: classifier,
		enricher:   enricher,
		profiles:   profiles,

		opts:   opts,
		logger: logger,
	}
	// The coordinator schedules follow-up work through the consumer's own
	// pool, so it is built after the pool exists.
	c.coordinator = coordinatorFor(c)
	return c, nil
}

// Run dequeues events until the context ends or the queue closes. Each
// event is handed to the pool; Submit blocks when all workers are busy,
// which throttles dequeueing instead of growing an unbounded backlog.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		payload, err := c.events.Dequeue(ctx)
		if err != nil {
			if err == queue.ErrClosed || ctx.Err() != nil {
				c.shutdown()
				return nil
			}
			return err
		}
		raw := payload
		if err := c.pool.Submit(func() {
			c.runUnit(ctx, "event", func(ctx context.Context) error {
				return c.processEvent(ctx, raw)
			})
		}); err != nil {
			return fmt.Errorf("submit event to pool: %w", err)
		}
	}
}

// ScheduleArticleEnrichment queues a process-article unit of work.
func (c *Consumer) ScheduleArticleEnrichment(articleID int64) {
	c.schedule("enrich", func(ctx context.Context) error {
		return c.enricher.ProcessArticle(ctx, articleID)
	})
}

// ScheduleSourceProfileSync queues a profile sync unit of work.
func (c *Consumer) ScheduleSourceProfileSync(sourceID int64) {
	c.schedule("profile_sync", func(ctx context.Context) error {
		return c.profiles.Sync(ctx, sourceID)
	})
}

// schedule hands a follow-up unit to the dedicated pool. Submitting to the
// event pool from inside one of its own workers would deadlock once every
// worker is busy.
func (c *Consumer) schedule(kind string, fn func(ctx context.Context) error) {
	if err := c.followups.Submit(func() {
		c.runUnit(context.Background(), kind, fn)
	}); err != nil {
		c.logger.Error().Err(err).Str("unit", kind).Msg("failed to schedule unit of work")
	}
}

// shutdown drains the event pool first so in-flight events can still emit
// their follow-up units, then drains the follow-up pool.
func (c *Consumer) shutdown() {
	if err := c.pool.ReleaseTimeout(drainTimeout); err != nil {
		c.logger.Warn().Err(err).Msg("event workers did not drain in time")
	}
	if err := c.followups.ReleaseTimeout(drainTimeout); err != nil {
		c.logger.Warn().Err(err).Msg("follow-up workers did not drain in time")
	}
}

// runUnit wraps one unit of work with bounded retry and panic recovery. A
// panic is logged with its stack and converted to an error so redelivery
// stays with the queue, never a crashed worker.
func (c *Consumer) runUnit(ctx context.Context, kind string, fn func(ctx context.Context) error) {
	err := queue.Retry(ctx, c.opts.RetryAttempts, c.opts.RetryBase, func(ctx context.Context) (unitErr error) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error().
					Str("unit", kind).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("unit of work panicked")
				unitErr = fmt.Errorf("unit of work panicked: %v", r)
			}
		}()
		return fn(ctx)
	})
	if err != nil {
		c.logger.Error().Err(err).Str("unit", kind).Msg("unit of work abandoned")
	}
}

// processEvent validates one raw event, extracts candidate links, and
// ingests each. Per-link failures are isolated: one bad link never stops
// its siblings.
func (c *Consumer) processEvent(ctx context.Context, payload json.RawMessage) error {
	event, err := eventschema.ValidatePostEvent(payload)
	if err != nil {
		// Malformed events will never validate on redelivery; drop them.
		c.logger.Warn().Err(err).Msg("discarding invalid event")
		return nil
	}

	candidates := c.extractor.Extract(ctx, event)
	if len(candidates) == 0 {
		return nil
	}

	var failures int
	for _, link := range candidates {
		if err := c.processLink(ctx, event, payload, link); err != nil {
			failures++
			c.logger.Warn().Err(err).Str("url", link).Str("did", event.DID).
				Msg("link processing failed")
		}
	}
	if failures == len(candidates) {
		return fmt.Errorf("all %d links failed for event from %s", failures, event.DID)
	}
	return nil
}

func (c *Consumer) processLink(ctx context.Context, event *eventschema.PostEvent, payload json.RawMessage, link string) error {
	fetched, err := c.fetcher.Fetch(ctx, link)
	if err != nil {
		return err
	}

	cls := c.classifier.Classify(fetched.HTML, fetched.URL)
	if !cls.IsNewsArticle {
		c.logger.Debug().Str("url", fetched.URL).Msg("not a news article, skipping")
		return nil
	}

	_, err = c.coordinator.IngestLink(ctx, event, payload, fetched.URL, fetched.HTML, cls)
	return err
}
