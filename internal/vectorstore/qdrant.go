// Package vectorstore is a small Qdrant REST client for similarity search.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

const (
	DefaultCollection = "rbi_circulars"
	DistanceCosine    = "Cosine"
)

var ErrCollectionNotFound = errors.New("collection not found")

// Hit is one similarity-search result.
type Hit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// String returns the payload field as text, or "" when absent.
func (h Hit) String(key string) string {
	v, ok := h.Payload[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

type Point struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload,omitempty"`
}

// APIError is a non-2xx reply from Qdrant.
type APIError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("qdrant error (status %d): %s", e.StatusCode, e.Status)
	}
	return fmt.Sprintf("qdrant error (status %d): %s", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(q *Client) {
		if c != nil {
			q.httpClient = c
		}
	}
}

func NewClient(baseURL, apiKey, collection string, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("invalid qdrant url: %w", err)
	}
	if collection == "" {
		collection = DefaultCollection
	}
	c := &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		collection: collection,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) Collection() string {
	return c.collection
}

// Search returns the limit nearest points to vector, best first.
func (c *Client) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is empty")
	}
	if limit <= 0 {
		limit = 5
	}
	body, err := c.do(ctx, http.MethodPost, c.collectionPath("points", "search"), map[string]any{
		"vector":       vector,
		"limit":        limit,
		"with_payload": true,
	})
	if err != nil {
		return nil, err
	}

	results := gjson.GetBytes(body, "result")
	if !results.IsArray() {
		return nil, fmt.Errorf("unexpected search response: %s", truncate(body))
	}

	hits := make([]Hit, 0, len(results.Array()))
	for _, r := range results.Array() {
		hit := Hit{
			ID:    r.Get("id").String(),
			Score: r.Get("score").Float(),
		}
		if payload, ok := r.Get("payload").Value().(map[string]any); ok {
			hit.Payload = payload
		} else {
			hit.Payload = map[string]any{}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// Upsert writes points and waits until they are indexed.
func (c *Client) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	_, err := c.do(ctx, http.MethodPut, c.collectionPath("points")+"?wait=true", map[string]any{
		"points": points,
	})
	return err
}

// EnsureCollection creates the collection with cosine distance when it does not exist.
func (c *Client) EnsureCollection(ctx context.Context, dim int) error {
	_, err := c.do(ctx, http.MethodGet, c.collectionPath(), nil)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrCollectionNotFound) {
		return err
	}
	if dim <= 0 {
		return fmt.Errorf("vector size must be positive")
	}
	_, err = c.do(ctx, http.MethodPut, c.collectionPath(), map[string]any{
		"vectors": map[string]any{
			"size":     dim,
			"distance": DistanceCosine,
		},
	})
	return err
}

func (c *Client) collectionPath(parts ...string) string {
	p := "/collections/" + url.PathEscape(c.collection)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

func (c *Client) do(ctx context.Context, method, path string, payload any) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet {
		return nil, ErrCollectionNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Status:     gjson.GetBytes(body, "status.error").String(),
			Body:       truncate(body),
		}
	}
	return body, nil
}

func truncate(body []byte) string {
	const limit = 300
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
