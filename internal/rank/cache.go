package rank

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	cacheSize = 64
	cacheTTL  = 5 * time.Minute
)

// feedCache holds fully scored feeds. Keys embed the latest article
// mutation timestamp, so any write produces a new key and stale entries
// simply age out; the TTL only bounds memory for abandoned keys.
type feedCache struct {
	lru *expirable.LRU[string, []RankedArticle]
}

func newFeedCache() *feedCache {
	return &feedCache{
		lru: expirable.NewLRU[string, []RankedArticle](cacheSize, nil, cacheTTL),
	}
}

func (c *feedCache) get(key string) ([]RankedArticle, bool) {
	return c.lru.Get(key)
}

func (c *feedCache) put(key string, feed []RankedArticle) {
	c.lru.Add(key, feed)
}

// cacheKey identifies one view of the feed at one freshness point. Source
// IDs are sorted so equivalent views share a key regardless of caller
// ordering.
func cacheKey(sourceIDs []int64, freshness time.Time) string {
	var b strings.Builder
	if len(sourceIDs) == 0 {
		b.WriteString("top")
	} else {
		sorted := make([]int64, len(sourceIDs))
		copy(sorted, sourceIDs)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
		b.WriteString("network:")
		for i, id := range sorted {
			if i > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.FormatInt(id, 10))
		}
	}
	b.WriteByte('@')
	b.WriteString(strconv.FormatInt(freshness.UTC().UnixNano(), 10))
	return b.String()
}
