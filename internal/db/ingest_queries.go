package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// NewArticle carries the classifier output persisted on first creation of an
// article row. Existing rows are never overwritten by a later share.
type NewArticle struct {
	URL         string
	Title       string
	Author      *string
	Description *string
	ImageURL    *string
	PublishedAt *time.Time
	HTMLContent string
	BodyText    string
	Language    string
	JSONLDData  json.RawMessage
}

// NewPost carries an observed post keyed by its canonical at:// URI.
type NewPost struct {
	URI         string
	SourceID    int64
	Payload     json.RawMessage
	PublishedAt time.Time
}

// FindOrCreateSource inserts a source for the DID or returns the existing
// row. The insert races safely against duplicate delivery: the unique
// constraint on did acts as the arbiter and losing the race is success.
func (p *Pool) FindOrCreateSource(ctx context.Context, did string, now time.Time) (int64, bool, error) {
	const insert = `
INSERT INTO sources (did, created_at, updated_at)
VALUES ($1, $2, $2)
ON CONFLICT (did) DO NOTHING
RETURNING source_id
`
	var id int64
	err := p.QueryRow(ctx, insert, did, now).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !IsNoRows(err) {
		return 0, false, fmt.Errorf("insert source did=%s: %w", did, err)
	}

	const sel = `SELECT source_id FROM sources WHERE did = $1`
	if err := p.QueryRow(ctx, sel, did).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("select source did=%s: %w", did, err)
	}
	return id, false, nil
}

// FindOrCreateArticle inserts an article keyed by URL or returns the
// existing row's id.
func (p *Pool) FindOrCreateArticle(ctx context.Context, article NewArticle, now time.Time) (int64, bool, error) {
	const insert = `
INSERT INTO articles (
	url, title, author, description, image_url, published_at,
	html_content, body_text, language, jsonld_data, created_at, updated_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
ON CONFLICT (url) DO NOTHING
RETURNING article_id
`
	var id int64
	err := p.QueryRow(ctx, insert,
		article.URL,
		article.Title,
		article.Author,
		article.Description,
		article.ImageURL,
		article.PublishedAt,
		article.HTMLContent,
		article.BodyText,
		article.Language,
		normalizeJSON(article.JSONLDData),
		now,
	).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !IsNoRows(err) {
		return 0, false, fmt.Errorf("insert article url=%s: %w", article.URL, err)
	}

	const sel = `SELECT article_id FROM articles WHERE url = $1`
	if err := p.QueryRow(ctx, sel, article.URL).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("select article url=%s: %w", article.URL, err)
	}
	return id, false, nil
}

// FindOrCreatePost inserts a post keyed by canonical URI or returns the
// existing row's id. Duplicate URIs are no-ops.
func (p *Pool) FindOrCreatePost(ctx context.Context, post NewPost, now time.Time) (int64, bool, error) {
	const insert = `
INSERT INTO posts (uri, source_id, payload, published_at, created_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (uri) DO NOTHING
RETURNING post_id
`
	var id int64
	err := p.QueryRow(ctx, insert, post.URI, post.SourceID, normalizeJSON(post.Payload), post.PublishedAt, now).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !IsNoRows(err) {
		return 0, false, fmt.Errorf("insert post uri=%s: %w", post.URI, err)
	}

	const sel = `SELECT post_id FROM posts WHERE uri = $1`
	if err := p.QueryRow(ctx, sel, post.URI).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("select post uri=%s: %w", post.URI, err)
	}
	return id, false, nil
}

// FindOrCreateArticlePost records a share. The (article_id, post_id) unique
// index makes the operation idempotent under redelivery.
func (p *Pool) FindOrCreateArticlePost(ctx context.Context, articleID, postID int64, now time.Time) (bool, error) {
	const insert = `
INSERT INTO article_posts (article_id, post_id, created_at)
VALUES ($1, $2, $3)
ON CONFLICT (article_id, post_id) DO NOTHING
`
	tag, err := p.Exec(ctx, insert, articleID, postID, now)
	if err != nil {
		return false, fmt.Errorf("insert article_post article_id=%d post_id=%d: %w", articleID, postID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// SourceProfile is the subset of a source row the profile sync touches.
type SourceProfile struct {
	SourceID    int64
	DID         string
	Handle      *string
	DisplayName *string
	AvatarURL   *string
}

// GetSourceProfile loads a source's identity and current profile fields.
func (p *Pool) GetSourceProfile(ctx context.Context, sourceID int64) (SourceProfile, error) {
	const q = `
SELECT source_id, did, handle, display_name, avatar_url
FROM sources
WHERE source_id = $1
`
	var row SourceProfile
	if err := p.QueryRow(ctx, q, sourceID).Scan(&row.SourceID, &row.DID, &row.Handle, &row.DisplayName, &row.AvatarURL); err != nil {
		return SourceProfile{}, fmt.Errorf("select source id=%d: %w", sourceID, err)
	}
	return row, nil
}

// UpdateSourceProfile stores resolved profile metadata on a source row.
func (p *Pool) UpdateSourceProfile(ctx context.Context, sourceID int64, handle, displayName, avatarURL *string, now time.Time) error {
	const q = `
UPDATE sources
SET handle = $2, display_name = $3, avatar_url = $4, profile_synced_at = $5, updated_at = $5
WHERE source_id = $1
`
	if _, err := p.Exec(ctx, q, sourceID, handle, displayName, avatarURL, now); err != nil {
		return fmt.Errorf("update source profile id=%d: %w", sourceID, err)
	}
	return nil
}

// ArticleContent is what enrichment reads back from an article row.
type ArticleContent struct {
	ArticleID   int64
	URL         string
	HTMLContent string
	BodyText    string
	CleanedText *string
	Language    string
}

// GetArticleContent loads the text fields enrichment works over.
func (p *Pool) GetArticleContent(ctx context.Context, articleID int64) (ArticleContent, error) {
	const q = `
SELECT article_id, url, html_content, body_text, cleaned_text, language
FROM articles
WHERE article_id = $1
`
	var row ArticleContent
	err := p.QueryRow(ctx, q, articleID).Scan(&row.ArticleID, &row.URL, &row.HTMLContent, &row.BodyText, &row.CleanedText, &row.Language)
	if err != nil {
		return ArticleContent{}, fmt.Errorf("select article id=%d: %w", articleID, err)
	}
	return row, nil
}

// SetArticleCleanedText stores the cleaner output and detected language.
// Bumping updated_at here also invalidates cached rankings.
func (p *Pool) SetArticleCleanedText(ctx context.Context, articleID int64, cleanedText, language string, now time.Time) error {
	const q = `
UPDATE articles
SET cleaned_text = $2, language = $3, updated_at = $4
WHERE article_id = $1
`
	if _, err := p.Exec(ctx, q, articleID, cleanedText, language, now); err != nil {
		return fmt.Errorf("update article cleaned text id=%d: %w", articleID, err)
	}
	return nil
}

// ListArticlesPendingEnrichment returns ids of articles without cleaned text,
// oldest first.
func (p *Pool) ListArticlesPendingEnrichment(ctx context.Context, limit int) ([]int64, error) {
	const q = `
SELECT article_id
FROM articles
WHERE cleaned_text IS NULL
ORDER BY article_id
LIMIT $1
`
	rows, err := p.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("select pending articles: %w", err)
	}
	defer rows.Close()

	ids := make([]int64, 0, limit)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan pending article id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending articles: %w", err)
	}
	return ids, nil
}

func normalizeJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
