// Package ollama generates embeddings through a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/becomeliminal/nim-memory/memory"
)

const (
	DefaultBaseURL    = "http://localhost:11434"
	DefaultModel      = "nomic-embed-text"
	DefaultDimensions = 768
)

// Client calls the Ollama /api/embed endpoint.
type Client struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithModel sets the embedding model.
func WithModel(model string) Option {
	return func(c *Client) {
		c.model = model
	}
}

// WithDimensions sets the expected vector size.
func WithDimensions(n int) Option {
	return func(c *Client) {
		c.dimensions = n
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      DefaultModel,
		dimensions: DefaultDimensions,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed generates an embedding vector for the given text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	data, err := json.Marshal(embedRequest{Model: c.model, Input: text})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to marshal embed request", goerr.T(memory.ErrTagEmbedding))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embed", bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to build embed request", goerr.T(memory.ErrTagEmbedding))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, goerr.Wrap(err, "ollama embed request failed", goerr.V("url", c.baseURL), goerr.T(memory.ErrTagEmbedding))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read embed response", goerr.T(memory.ErrTagEmbedding))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, goerr.New("ollama embed failed",
			goerr.V("status", resp.StatusCode), goerr.V("body", string(body)), goerr.T(memory.ErrTagEmbedding))
	}

	var result embedResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, goerr.Wrap(err, "failed to decode embed response", goerr.T(memory.ErrTagEmbedding))
	}
	if len(result.Embeddings) == 0 || len(result.Embeddings[0]) == 0 {
		return nil, goerr.New("ollama returned no embeddings", goerr.V("model", c.model), goerr.T(memory.ErrTagEmbedding))
	}
	return result.Embeddings[0], nil
}

// Dimensions returns the configured vector size.
func (c *Client) Dimensions() int {
	return c.dimensions
}

type tagsResponse struct {
	Models []struct {
		Name string `json:"name"`
	} `json:"models"`
}

// HealthCheck verifies Ollama is reachable and the model is pulled.
func (c *Client) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return goerr.Wrap(err, "failed to build health request")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return goerr.Wrap(err, "ollama unreachable", goerr.V("url", c.baseURL), goerr.T(memory.ErrTagStoreUnavailable))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return goerr.New("ollama health check failed", goerr.V("status", resp.StatusCode), goerr.T(memory.ErrTagStoreUnavailable))
	}

	var tags tagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return goerr.Wrap(err, "failed to decode tags", goerr.T(memory.ErrTagStoreUnavailable))
	}
	for _, m := range tags.Models {
		if m.Name == c.model || strings.TrimSuffix(m.Name, ":latest") == c.model {
			return nil
		}
	}
	return goerr.New("ollama model not pulled", goerr.V("model", c.model), goerr.T(memory.ErrTagStoreUnavailable))
}

var (
	_ memory.Embedder      = (*Client)(nil)
	_ memory.HealthChecker = (*Client)(nil)
)
