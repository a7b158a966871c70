package db

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ArticleShares is one ranking candidate: an article plus its share count
// within the view being scored.
type ArticleShares struct {
	ArticleID  int64
	URL        string
	Title      string
	ImageURL   *string
	CreatedAt  time.Time
	ShareCount int64
}

// ArticleShareCounts returns articles created at or after the cutoff with
// their global share counts, most shared first.
func (p *Pool) ArticleShareCounts(ctx context.Context, since time.Time, limit int) ([]ArticleShares, error) {
	const q = `
SELECT a.article_id, a.url, a.title, a.image_url, a.created_at, COUNT(ap.article_post_id)
FROM articles a
JOIN article_posts ap ON ap.article_id = a.article_id
WHERE a.created_at >= $1
GROUP BY a.article_id
ORDER BY COUNT(ap.article_post_id) DESC, a.created_at DESC
LIMIT $2
`
	rows, err := p.Query(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query article share counts: %w", err)
	}
	defer rows.Close()
	return scanArticleShares(rows, limit)
}

// NetworkArticleShareCounts restricts both eligibility and counting to
// shares whose post belongs to one of the given sources.
func (p *Pool) NetworkArticleShareCounts(ctx context.Context, since time.Time, sourceIDs []int64, limit int) ([]ArticleShares, error) {
	if len(sourceIDs) == 0 {
		return nil, nil
	}

	q := fmt.Sprintf(`
SELECT a.article_id, a.url, a.title, a.image_url, a.created_at, COUNT(ap.article_post_id)
FROM articles a
JOIN article_posts ap ON ap.article_id = a.article_id
JOIN posts p ON p.post_id = ap.post_id
WHERE a.created_at >= $1
  AND p.source_id IN (%s)
GROUP BY a.article_id
ORDER BY COUNT(ap.article_post_id) DESC, a.created_at DESC
LIMIT $2
`, int64List(sourceIDs))

	rows, err := p.Query(ctx, q, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("query network share counts: %w", err)
	}
	defer rows.Close()
	return scanArticleShares(rows, limit)
}

// MaxArticleUpdatedAt returns the most recent article mutation timestamp.
// It seeds the ranking cache key so any write invalidates stale entries.
func (p *Pool) MaxArticleUpdatedAt(ctx context.Context) (time.Time, error) {
	const q = `SELECT COALESCE(MAX(updated_at), 'epoch'::timestamptz) FROM articles`
	var ts time.Time
	if err := p.QueryRow(ctx, q).Scan(&ts); err != nil {
		return time.Time{}, fmt.Errorf("query max article updated_at: %w", err)
	}
	return ts.UTC(), nil
}

func scanArticleShares(rows *Rows, capacity int) ([]ArticleShares, error) {
	items := make([]ArticleShares, 0, capacity)
	for rows.Next() {
		var row ArticleShares
		if err := rows.Scan(&row.ArticleID, &row.URL, &row.Title, &row.ImageURL, &row.CreatedAt, &row.ShareCount); err != nil {
			return nil, fmt.Errorf("scan article shares: %w", err)
		}
		items = append(items, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate article shares: %w", err)
	}
	return items, nil
}

// int64List renders ids for an IN clause. Values are integers, never user
// text, so inline rendering is injection-safe.
func int64List(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, strconv.FormatInt(id, 10))
	}
	return strings.Join(parts, ", ")
}
