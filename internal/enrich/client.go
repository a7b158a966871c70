package enrich

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/skybrief/skybrief/internal/db"
)

const (
	DefaultModelName = "all-MiniLM-L6-v2"
	DefaultTimeout   = 60 * time.Second
)

// Embedding is one vector from the backend, tagged with the model version
// that produced it.
type Embedding struct {
	Vector       []float64
	ModelVersion string
}

// EntityMention is a single named-entity occurrence in the submitted text.
type EntityMention struct {
	Text  string `json:"text"`
	Label string `json:"label"`
	Start int    `json:"start"`
}

// Client calls the external embedding/entity-extraction backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type embeddingRequest struct {
	Text      string `json:"text"`
	ModelName string `json:"model_name"`
}

type embeddingResponse struct {
	Embedding    []float64 `json:"embedding"`
	ModelVersion string    `json:"model_version"`
}

// GenerateEmbedding requests a fixed-dimensionality vector for one chunk.
func (c *Client) GenerateEmbedding(ctx context.Context, text, modelName string) (Embedding, error) {
	if strings.TrimSpace(modelName) == "" {
		modelName = DefaultModelName
	}

	var parsed embeddingResponse
	err := c.postJSON(ctx, "/api/v1/embeddings", embeddingRequest{Text: text, ModelName: modelName}, &parsed)
	if err != nil {
		return Embedding{}, err
	}

	if len(parsed.Embedding) != db.EmbeddingDimensions {
		return Embedding{}, fmt.Errorf("embedding has %d dimensions, expected %d", len(parsed.Embedding), db.EmbeddingDimensions)
	}

	return Embedding{
		Vector:       parsed.Embedding,
		ModelVersion: parsed.ModelVersion,
	}, nil
}

type entitiesRequest struct {
	Text string `json:"text"`
}

type entitiesResponse struct {
	Entities []EntityMention `json:"entities"`
	Count    int             `json:"count"`
}

// ExtractEntities runs named-entity extraction over the full cleaned text.
func (c *Client) ExtractEntities(ctx context.Context, text string) ([]EntityMention, error) {
	var parsed entitiesResponse
	if err := c.postJSON(ctx, "/api/v1/entities", entitiesRequest{Text: text}, &parsed); err != nil {
		return nil, err
	}
	return parsed.Entities, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
