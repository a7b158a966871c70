package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/db"
	"github.com/skybrief/skybrief/internal/globaltime"
	"github.com/skybrief/skybrief/internal/newsdetect"
	eventschema "github.com/skybrief/skybrief/schema"
)

// Store is the persistence surface the coordinator needs. Every operation
// is find-by-natural-key-or-create; *db.Pool satisfies it.
type Store interface {
	FindOrCreateSource(ctx context.Context, did string, now time.Time) (int64, bool, error)
	FindOrCreateArticle(ctx context.Context, article db.NewArticle, now time.Time) (int64, bool, error)
	FindOrCreatePost(ctx context.Context, post db.NewPost, now time.Time) (int64, bool, error)
	FindOrCreateArticlePost(ctx context.Context, articleID, postID int64, now time.Time) (bool, error)
}

// Scheduler enqueues follow-up units of work. Creation of a row never
// schedules anything implicitly; the coordinator emits work explicitly.
type Scheduler interface {
	ScheduleArticleEnrichment(articleID int64)
	ScheduleSourceProfileSync(sourceID int64)
}

// Result reports what one link's ingestion touched.
type Result struct {
	SourceID       int64
	ArticleID      int64
	PostID         int64
	ArticleCreated bool
	PostCreated    bool
	ShareRecorded  bool
}

// Coordinator persists Source/Post/Article/ArticlePost for classified links.
type Coordinator struct {
	store     Store
	scheduler Scheduler
	logger    zerolog.Logger
}

func NewCoordinator(store Store, scheduler Scheduler, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     store,
		scheduler: scheduler,
		logger:    logger,
	}
}

// IngestLink persists everything for one (link, classification) pair. The
// classification must be a positive news-article verdict. "Row already
// exists" everywhere is success: redelivery and concurrent duplicates
// resolve through the natural-key constraints.
func (c *Coordinator) IngestLink(
	ctx context.Context,
	event *eventschema.PostEvent,
	rawPayload json.RawMessage,
	link string,
	htmlContent string,
	cls newsdetect.Result,
) (Result, error) {
	if event == nil || event.Commit == nil {
		return Result{}, fmt.Errorf("event commit is missing")
	}
	if !cls.IsNewsArticle {
		return Result{}, fmt.Errorf("link %s was not classified as a news article", link)
	}

	now := globaltime.UTC()

	sourceID, sourceCreated, err := c.store.FindOrCreateSource(ctx, event.DID, now)
	if err != nil {
		return Result{}, err
	}
	if sourceCreated && c.scheduler != nil {
		c.scheduler.ScheduleSourceProfileSync(sourceID)
	}

	title := cls.Title
	if title == "" {
		title = link
	}

	articleID, articleCreated, err := c.store.FindOrCreateArticle(ctx, db.NewArticle{
		URL:         link,
		Title:       title,
		Author:      cls.Author,
		Description: cls.Description,
		ImageURL:    cls.ImageURL,
		PublishedAt: cls.PublishedAt,
		HTMLContent: htmlContent,
		BodyText:    cls.BodyText,
		Language:    cls.Language,
		JSONLDData:  cls.JSONLD,
	}, now)
	if err != nil {
		return Result{}, err
	}

	uri, err := postURI(event)
	if err != nil {
		return Result{}, err
	}

	postID, postCreated, err := c.store.FindOrCreatePost(ctx, db.NewPost{
		URI:         uri,
		SourceID:    sourceID,
		Payload:     rawPayload,
		PublishedAt: parseCreatedAt(event, now),
	}, now)
	if err != nil {
		return Result{}, err
	}

	shareRecorded, err := c.store.FindOrCreateArticlePost(ctx, articleID, postID, now)
	if err != nil {
		return Result{}, err
	}

	// Enrichment is scheduled only on first creation of the article and is
	// never run inline.
	if articleCreated && c.scheduler != nil {
		c.scheduler.ScheduleArticleEnrichment(articleID)
	}

	c.logger.Debug().
		Int64("source_id", sourceID).
		Int64("article_id", articleID).
		Int64("post_id", postID).
		Bool("article_created", articleCreated).
		Bool("share_recorded", shareRecorded).
		Str("url", link).
		Msg("link ingested")

	return Result{
		SourceID:       sourceID,
		ArticleID:      articleID,
		PostID:         postID,
		ArticleCreated: articleCreated,
		PostCreated:    postCreated,
		ShareRecorded:  shareRecorded,
	}, nil
}

// postURI builds the canonical at:// URI, preferring one carried by the
// record itself. A missing component aborts this link's ingestion; no
// partial post is created.
func postURI(event *eventschema.PostEvent) (string, error) {
	if record := event.Commit.Record; record != nil && strings.TrimSpace(record.URI) != "" {
		return strings.TrimSpace(record.URI), nil
	}

	did := strings.TrimSpace(event.DID)
	collection := strings.TrimSpace(event.Commit.Collection)
	rkey := strings.TrimSpace(event.Commit.RKey)
	if did == "" || collection == "" || rkey == "" {
		return "", fmt.Errorf("cannot construct post URI: did=%q collection=%q rkey=%q", did, collection, rkey)
	}
	return fmt.Sprintf("at://%s/%s/%s", did, collection, rkey), nil
}

// parseCreatedAt reads the record's creation timestamp, substituting now on
// parse failure rather than failing the unit of work.
func parseCreatedAt(event *eventschema.PostEvent, now time.Time) time.Time {
	record := event.Commit.Record
	if record == nil || strings.TrimSpace(record.CreatedAt) == "" {
		return now
	}
	parsed, err := time.Parse(time.RFC3339, strings.TrimSpace(record.CreatedAt))
	if err != nil {
		return now
	}
	return parsed.UTC()
}
