package db

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// EmbeddingDimensions is the fixed dimensionality of the enrichment
// backend's embedding vectors and of the article_chunks vector column.
const EmbeddingDimensions = 384

// ChunkInsert is one chunk row ready for persistence.
type ChunkInsert struct {
	ArticleID        int64
	ChunkIndex       int
	Text             string
	TokenCount       int
	Checksum         string
	EmbeddingVersion string
	VectorLiteral    string
}

// InsertArticleChunk persists one chunk with its embedding. The unique
// (article_id, chunk_index) index makes reprocessing a no-op.
func (p *Pool) InsertArticleChunk(ctx context.Context, chunk ChunkInsert, now time.Time) (bool, error) {
	const q = `
INSERT INTO article_chunks (
	article_id, chunk_index, text, token_count, checksum, embedding_version, embedding, created_at
)
VALUES ($1, $2, $3, $4, $5, $6, $7::vector, $8)
ON CONFLICT (article_id, chunk_index) DO NOTHING
`
	tag, err := p.Exec(ctx, q,
		chunk.ArticleID,
		chunk.ChunkIndex,
		chunk.Text,
		chunk.TokenCount,
		chunk.Checksum,
		chunk.EmbeddingVersion,
		chunk.VectorLiteral,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("insert article chunk article_id=%d index=%d: %w", chunk.ArticleID, chunk.ChunkIndex, err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountArticleChunks returns how many chunk rows exist for an article.
func (p *Pool) CountArticleChunks(ctx context.Context, articleID int64) (int64, error) {
	const q = `SELECT COUNT(*) FROM article_chunks WHERE article_id = $1`
	var count int64
	if err := p.QueryRow(ctx, q, articleID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count article chunks article_id=%d: %w", articleID, err)
	}
	return count, nil
}

// VectorLiteral renders an embedding as a pgvector literal, rejecting wrong
// dimensionality and non-finite values.
func VectorLiteral(values []float64) (string, error) {
	if len(values) != EmbeddingDimensions {
		return "", fmt.Errorf("expected %d dimensions, got %d", EmbeddingDimensions, len(values))
	}

	var builder strings.Builder
	builder.Grow(len(values) * 8)
	builder.WriteByte('[')
	for i, value := range values {
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return "", fmt.Errorf("vector has non-finite value at index %d", i)
		}
		if i > 0 {
			builder.WriteByte(',')
		}
		builder.WriteString(strconv.FormatFloat(value, 'f', -1, 64))
	}
	builder.WriteByte(']')
	return builder.String(), nil
}
