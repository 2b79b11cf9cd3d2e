// Package gemini generates embeddings with Google's Gemini embedding models
// through the genai SDK, on either Vertex AI or the Gemini API.
package gemini

import (
	"context"

	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"

	"github.com/becomeliminal/nim-memory/memory"
)

const (
	DefaultModel      = "text-embedding-004"
	DefaultDimensions = 768
)

// Models is the slice of genai.Models used here.
type Models interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Config selects the backend. Project set means Vertex AI; otherwise APIKey
// is used against the Gemini API.
type Config struct {
	Project    string
	Location   string
	APIKey     string
	Model      string
	Dimensions int
}

// Embedder implements memory.Embedder on Gemini.
type Embedder struct {
	models     Models
	model      string
	dimensions int
}

// New creates a genai client for cfg.
func New(ctx context.Context, cfg Config) (*Embedder, error) {
	cc := &genai.ClientConfig{Backend: genai.BackendGeminiAPI, APIKey: cfg.APIKey}
	if cfg.Project != "" {
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	} else if cfg.APIKey == "" {
		return nil, goerr.New("gemini needs a project or an API key", goerr.T(memory.ErrTagInvalidArgument))
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create genai client")
	}
	return NewWithModels(client.Models, cfg), nil
}

// NewWithModels wraps an existing Models implementation.
func NewWithModels(models Models, cfg Config) *Embedder {
	e := &Embedder{
		models:     models,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
	}
	if e.model == "" {
		e.model = DefaultModel
	}
	if e.dimensions == 0 {
		e.dimensions = DefaultDimensions
	}
	return e
}

// Embed converts text to a vector of Dimensions() values.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	dims := int32(e.dimensions)
	resp, err := e.models.EmbedContent(ctx, e.model, genai.Text(text), &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to embed content", goerr.V("model", e.model), goerr.T(memory.ErrTagEmbedding))
	}
	if resp == nil || len(resp.Embeddings) == 0 || resp.Embeddings[0] == nil || len(resp.Embeddings[0].Values) == 0 {
		return nil, goerr.New("gemini returned no embeddings", goerr.V("model", e.model), goerr.T(memory.ErrTagEmbedding))
	}
	return resp.Embeddings[0].Values, nil
}

// Dimensions returns the requested output size.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

var _ memory.Embedder = (*Embedder)(nil)
