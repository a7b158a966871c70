package bsky

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	eventschema "github.com/skybrief/skybrief/schema"
)

const (
	DefaultBaseURL = "https://public.api.bsky.app"
	DefaultTimeout = 10 * time.Second
)

// Client talks to the public AT-proto read API. All calls are best-effort:
// callers degrade to "no data" on error.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// PostView is the subset of a hydrated post view the pipeline reads.
type PostView struct {
	URI    string              `json:"uri"`
	Record *eventschema.Record `json:"record"`
}

// Profile is the subset of an actor profile the source sync stores.
type Profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GetPost fetches a single hydrated post by at:// URI. A missing or
// unhydratable post returns (nil, nil).
func (c *Client) GetPost(ctx context.Context, uri string) (*PostView, error) {
	trimmed := strings.TrimSpace(uri)
	if trimmed == "" {
		return nil, fmt.Errorf("post uri is required")
	}

	endpoint := fmt.Sprintf("%s/xrpc/app.bsky.feed.getPosts?uris=%s", c.baseURL, url.QueryEscape(trimmed))

	var parsed struct {
		Posts []PostView `json:"posts"`
	}
	if err := c.getJSON(ctx, endpoint, &parsed); err != nil {
		return nil, err
	}
	if len(parsed.Posts) == 0 {
		return nil, nil
	}
	return &parsed.Posts[0], nil
}

// GetProfile resolves an actor profile by DID.
func (c *Client) GetProfile(ctx context.Context, did string) (*Profile, error) {
	trimmed := strings.TrimSpace(did)
	if trimmed == "" {
		return nil, fmt.Errorf("did is required")
	}

	endpoint := fmt.Sprintf("%s/xrpc/app.bsky.actor.getProfile?actor=%s", c.baseURL, url.QueryEscape(trimmed))

	var profile Profile
	if err := c.getJSON(ctx, endpoint, &profile); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
