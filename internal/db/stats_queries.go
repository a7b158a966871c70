package db

import (
	"context"
	"fmt"
)

// TableCounts summarizes pipeline state for the health surface.
type TableCounts struct {
	Sources         int64 `json:"sources"`
	Posts           int64 `json:"posts"`
	Articles        int64 `json:"articles"`
	ArticlePosts    int64 `json:"article_posts"`
	ArticleChunks   int64 `json:"article_chunks"`
	Entities        int64 `json:"entities"`
	ArticleEntities int64 `json:"article_entities"`
}

// CountRows gathers row counts across the pipeline tables.
func (p *Pool) CountRows(ctx context.Context) (TableCounts, error) {
	const q = `
SELECT
	(SELECT COUNT(*) FROM sources),
	(SELECT COUNT(*) FROM posts),
	(SELECT COUNT(*) FROM articles),
	(SELECT COUNT(*) FROM article_posts),
	(SELECT COUNT(*) FROM article_chunks),
	(SELECT COUNT(*) FROM entities),
	(SELECT COUNT(*) FROM article_entities)
`
	var counts TableCounts
	err := p.QueryRow(ctx, q).Scan(
		&counts.Sources,
		&counts.Posts,
		&counts.Articles,
		&counts.ArticlePosts,
		&counts.ArticleChunks,
		&counts.Entities,
		&counts.ArticleEntities,
	)
	if err != nil {
		return TableCounts{}, fmt.Errorf("count pipeline tables: %w", err)
	}
	return counts, nil
}
