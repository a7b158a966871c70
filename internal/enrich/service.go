package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/chunk"
	"github.com/skybrief/skybrief/internal/db"
	"github.com/skybrief/skybrief/internal/globaltime"
	"github.com/skybrief/skybrief/internal/langdetect"
	"github.com/skybrief/skybrief/internal/textclean"
)

// defaultConfidence is stored on first creation of an (article, entity)
// link; the backend does not report per-mention confidence.
const defaultConfidence = 0.8

// Store is the persistence surface enrichment needs. *db.Pool satisfies it.
type Store interface {
	GetArticleContent(ctx context.Context, articleID int64) (db.ArticleContent, error)
	SetArticleCleanedText(ctx context.Context, articleID int64, cleanedText, language string, now time.Time) error
	InsertArticleChunk(ctx context.Context, chunk db.ChunkInsert, now time.Time) (bool, error)
	FindOrCreateEntity(ctx context.Context, name, normalizedName, entityType string, now time.Time) (int64, bool, error)
	MergeArticleEntity(ctx context.Context, articleID, entityID int64, frequency int, positions []int, confidence float64, now time.Time) error
}

// Backend is the embedding/entity extraction service. *Client satisfies it.
type Backend interface {
	GenerateEmbedding(ctx context.Context, text, modelName string) (Embedding, error)
	ExtractEntities(ctx context.Context, text string) ([]EntityMention, error)
}

// Service runs the enrichment unit of work for one article: clean, chunk,
// embed, extract entities, merge.
type Service struct {
	store     Store
	backend   Backend
	modelName string
	logger    zerolog.Logger
}

func NewService(store Store, backend Backend, modelName string, logger zerolog.Logger) *Service {
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultModelName
	}
	return &Service{
		store:     store,
		backend:   backend,
		modelName: modelName,
		logger:    logger,
	}
}

// ProcessArticle enriches one article. Per-chunk backend failures are
// logged and skipped; an error return means the whole unit should be
// retried by the queue.
func (s *Service) ProcessArticle(ctx context.Context, articleID int64) error {
	if s == nil || s.store == nil || s.backend == nil {
		return fmt.Errorf("enrichment service is not initialized")
	}

	article, err := s.store.GetArticleContent(ctx, articleID)
	if err != nil {
		return fmt.Errorf("load article %d: %w", articleID, err)
	}

	source := article.HTMLContent
	if strings.TrimSpace(source) == "" {
		source = article.BodyText
	}

	cleaned := textclean.Clean(source)
	if cleaned == "" {
		s.logger.Warn().Int64("article_id", articleID).Msg("no cleaned text, skipping enrichment")
		return nil
	}

	lang := article.Language
	if lang == "" {
		lang = langdetect.DetectISO6391(cleaned)
	}

	now := globaltime.UTC()
	if err := s.store.SetArticleCleanedText(ctx, articleID, cleaned, lang, now); err != nil {
		return err
	}

	chunks := chunk.Split(cleaned)
	if len(chunks) == 0 {
		s.logger.Warn().Int64("article_id", articleID).Msg("no chunks produced, skipping enrichment")
		return nil
	}

	embedded := 0
	for _, piece := range chunks {
		if err := s.embedChunk(ctx, articleID, piece); err != nil {
			s.logger.Error().Err(err).
				Int64("article_id", articleID).
				Int("chunk_index", piece.Index).
				Msg("failed to embed chunk")
			continue
		}
		embedded++
	}
	s.logger.Info().Int64("article_id", articleID).Int("chunks", len(chunks)).Int("embedded", embedded).Msg("processed article chunks")

	s.extractAndStoreEntities(ctx, articleID, cleaned)
	return nil
}

func (s *Service) embedChunk(ctx context.Context, articleID int64, piece chunk.Chunk) error {
	embedding, err := s.backend.GenerateEmbedding(ctx, piece.Text, s.modelName)
	if err != nil {
		return err
	}

	vectorLiteral, err := db.VectorLiteral(embedding.Vector)
	if err != nil {
		return err
	}

	_, err = s.store.InsertArticleChunk(ctx, db.ChunkInsert{
		ArticleID:        articleID,
		ChunkIndex:       piece.Index,
		Text:             piece.Text,
		TokenCount:       piece.TokenCount,
		Checksum:         piece.Checksum,
		EmbeddingVersion: embedding.ModelVersion,
		VectorLiteral:    vectorLiteral,
	}, globaltime.UTC())
	return err
}

// mentionGroup accumulates repeated mentions of one (surface text, label)
// pair, preserving first-seen order for deterministic persistence.
type mentionGroup struct {
	name      string
	label     string
	positions []int
}

func (s *Service) extractAndStoreEntities(ctx context.Context, articleID int64, cleanedText string) {
	mentions, err := s.backend.ExtractEntities(ctx, cleanedText)
	if err != nil {
		s.logger.Error().Err(err).Int64("article_id", articleID).Msg("failed to extract entities")
		return
	}
	if len(mentions) == 0 {
		return
	}

	groups := groupMentions(mentions)
	stored := 0
	for _, group := range groups {
		entityType, ok := MapLabel(group.label)
		if !ok {
			continue
		}

		normalized := strings.ToLower(strings.TrimSpace(group.name))
		if normalized == "" {
			continue
		}

		now := globaltime.UTC()
		entityID, _, err := s.store.FindOrCreateEntity(ctx, group.name, normalized, entityType, now)
		if err != nil {
			s.logger.Error().Err(err).Int64("article_id", articleID).Str("entity", normalized).Msg("failed to persist entity")
			continue
		}

		err = s.store.MergeArticleEntity(ctx, articleID, entityID, len(group.positions), group.positions, defaultConfidence, now)
		if err != nil {
			s.logger.Error().Err(err).Int64("article_id", articleID).Str("entity", normalized).Msg("failed to link entity")
			continue
		}
		stored++
	}

	s.logger.Info().Int64("article_id", articleID).Int("entities", stored).Msg("stored article entities")
}

func groupMentions(mentions []EntityMention) []mentionGroup {
	index := make(map[[2]string]int, len(mentions))
	groups := make([]mentionGroup, 0, len(mentions))
	for _, mention := range mentions {
		key := [2]string{mention.Text, mention.Label}
		if i, ok := index[key]; ok {
			groups[i].positions = append(groups[i].positions, mention.Start)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, mentionGroup{
			name:      mention.Text,
			label:     mention.Label,
			positions: []int{mention.Start},
		})
	}
	return groups
}
