package db

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"
)

// FindOrCreateEntity inserts a canonical entity keyed by
// (normalized_name, entity_type) or returns the existing row's id.
func (p *Pool) FindOrCreateEntity(ctx context.Context, name, normalizedName, entityType string, now time.Time) (int64, bool, error) {
	const insert = `
INSERT INTO entities (name, normalized_name, entity_type, created_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (normalized_name, entity_type) DO NOTHING
RETURNING entity_id
`
	var id int64
	err := p.QueryRow(ctx, insert, name, normalizedName, entityType, now).Scan(&id)
	if err == nil {
		return id, true, nil
	}
	if !IsNoRows(err) {
		return 0, false, fmt.Errorf("insert entity %s/%s: %w", normalizedName, entityType, err)
	}

	const sel = `SELECT entity_id FROM entities WHERE normalized_name = $1 AND entity_type = $2`
	if err := p.QueryRow(ctx, sel, normalizedName, entityType).Scan(&id); err != nil {
		return 0, false, fmt.Errorf("select entity %s/%s: %w", normalizedName, entityType, err)
	}
	return id, false, nil
}

// MergeArticleEntity links an entity to an article. On first creation it
// stores the pass's occurrence count and sorted positions; on a repeated
// pass it adds the count atomically under the unique constraint and merges
// the position lists (union, de-duplicated, sorted).
func (p *Pool) MergeArticleEntity(ctx context.Context, articleID, entityID int64, frequency int, positions []int, confidence float64, now time.Time) error {
	positionsJSON, err := json.Marshal(sortedUnique(positions))
	if err != nil {
		return fmt.Errorf("marshal entity positions: %w", err)
	}

	const upsert = `
INSERT INTO article_entities (article_id, entity_id, frequency, positions, confidence_score, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (article_id, entity_id) DO UPDATE
SET frequency = article_entities.frequency + EXCLUDED.frequency,
    updated_at = EXCLUDED.updated_at
RETURNING article_entity_id, positions, (xmax = 0) AS inserted
`
	var (
		rowID       int64
		storedJSON  []byte
		wasInserted bool
	)
	if err := p.QueryRow(ctx, upsert, articleID, entityID, frequency, string(positionsJSON), confidence, now).Scan(&rowID, &storedJSON, &wasInserted); err != nil {
		return fmt.Errorf("upsert article_entity article_id=%d entity_id=%d: %w", articleID, entityID, err)
	}
	if wasInserted {
		return nil
	}

	var stored []int
	if len(storedJSON) > 0 {
		if err := json.Unmarshal(storedJSON, &stored); err != nil {
			return fmt.Errorf("decode stored entity positions article_entity_id=%d: %w", rowID, err)
		}
	}

	mergedJSON, err := json.Marshal(sortedUnique(append(stored, positions...)))
	if err != nil {
		return fmt.Errorf("marshal merged entity positions: %w", err)
	}

	const update = `UPDATE article_entities SET positions = $2 WHERE article_entity_id = $1`
	if _, err := p.Exec(ctx, update, rowID, string(mergedJSON)); err != nil {
		return fmt.Errorf("update merged entity positions article_entity_id=%d: %w", rowID, err)
	}
	return nil
}

func sortedUnique(values []int) []int {
	if len(values) == 0 {
		return []int{}
	}
	seen := make(map[int]struct{}, len(values))
	unique := make([]int, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	sort.Ints(unique)
	return unique
}
