package rank

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/db"
	"github.com/skybrief/skybrief/internal/globaltime"
)

const (
	// Window is how far back an article's creation may lie and still be
	// eligible for ranking.
	Window = 7 * 24 * time.Hour

	// gravity and ageOffset shape the decay curve. An article two hours
	// old with one share scores 1 / 4^1.8.
	gravity   = 1.8
	ageOffset = 2.0

	// maxCandidates bounds how many share-count rows are pulled from the
	// store before scoring.
	maxCandidates = 500

	// DefaultLimit is the feed size when the caller does not ask for one.
	DefaultLimit = 50
)

// RankedArticle is one scored feed entry.
type RankedArticle struct {
	ArticleID  int64     `json:"article_id"`
	URL        string    `json:"url"`
	Title      string    `json:"title"`
	ImageURL   *string   `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	ShareCount int64     `json:"share_count"`
	Score      float64   `json:"score"`
}

// Store is the read-only persistence surface ranking needs; *db.Pool
// satisfies it.
type Store interface {
	ArticleShareCounts(ctx context.Context, since time.Time, limit int) ([]db.ArticleShares, error)
	NetworkArticleShareCounts(ctx context.Context, since time.Time, sourceIDs []int64, limit int) ([]db.ArticleShares, error)
	MaxArticleUpdatedAt(ctx context.Context) (time.Time, error)
}

// Engine scores share counts into time-decayed feeds.
type Engine struct {
	store  Store
	cache  *feedCache
	logger zerolog.Logger
}

func NewEngine(store Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:  store,
		cache:  newFeedCache(),
		logger: logger,
	}
}

// TopFeed returns the global ranked feed.
func (e *Engine) TopFeed(ctx context.Context, limit int) ([]RankedArticle, error) {
	return e.feed(ctx, nil, limit)
}

// NetworkFeed restricts eligibility and share counting to posts from the
// given sources.
func (e *Engine) NetworkFeed(ctx context.Context, sourceIDs []int64, limit int) ([]RankedArticle, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}
	return e.feed(ctx, sourceIDs, limit)
}

func (e *Engine) feed(ctx context.Context, sourceIDs []int64, limit int) ([]RankedArticle, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	freshness, err := e.store.MaxArticleUpdatedAt(ctx)
	if err != nil {
		return nil, err
	}
	key := cacheKey(sourceIDs, freshness)
	if feed, ok := e.cache.get(key); ok {
		return clampFeed(feed, limit), nil
	}

	now := globaltime.UTC()
	since := now.Add(-Window)

	var candidates []db.ArticleShares
	if len(sourceIDs) == 0 {
		candidates, err = e.store.ArticleShareCounts(ctx, since, maxCandidates)
	} else {
		candidates, err = e.store.NetworkArticleShareCounts(ctx, since, sourceIDs, maxCandidates)
	}
	if err != nil {
		return nil, err
	}

	feed := scoreCandidates(candidates, now)
	e.cache.put(key, feed)
	e.logger.Debug().
		Str("cache_key", key).
		Int("candidates", len(candidates)).
		Msg("ranked feed computed")
	return clampFeed(feed, limit), nil
}

// scoreCandidates applies the decay curve and sorts best first. Ties on
// score break toward the newer article for a stable ordering.
func scoreCandidates(candidates []db.ArticleShares, now time.Time) []RankedArticle {
	feed := make([]RankedArticle, 0, len(candidates))
	for _, c := range candidates {
		feed = append(feed, RankedArticle{
			ArticleID:  c.ArticleID,
			URL:        c.URL,
			Title:      c.Title,
			ImageURL:   c.ImageURL,
			CreatedAt:  c.CreatedAt,
			ShareCount: c.ShareCount,
			Score:      Score(c.ShareCount, c.CreatedAt, now),
		})
	}
	sort.SliceStable(feed, func(i, j int) bool {
		if feed[i].Score != feed[j].Score {
			return feed[i].Score > feed[j].Score
		}
		return feed[i].CreatedAt.After(feed[j].CreatedAt)
	})
	return feed
}

// Score computes share_count / (hours_since_created + 2)^1.8. Ages below
// zero (clock skew) are clamped so the denominator never shrinks past the
// offset.
func Score(shareCount int64, createdAt, now time.Time) float64 {
	hours := now.Sub(createdAt).Hours()
	if hours < 0 {
		hours = 0
	}
	return float64(shareCount) / math.Pow(hours+ageOffset, gravity)
}

func clampFeed(feed []RankedArticle, limit int) []RankedArticle {
	if len(feed) > limit {
		feed = feed[:limit]
	}
	out := make([]RankedArticle, len(feed))
	copy(out, feed)
	return out
}
