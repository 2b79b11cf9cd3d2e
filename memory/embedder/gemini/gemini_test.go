package gemini_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/gemini"
	"github.com/m-mizutani/gt"
	"google.golang.org/genai"
)

type mockModels struct {
	gotModel string
	gotDims  int32
	resp     *genai.EmbedContentResponse
	err      error
}

func (m *mockModels) EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	m.gotModel = model
	if config != nil && config.OutputDimensionality != nil {
		m.gotDims = *config.OutputDimensionality
	}
	return m.resp, m.err
}

func TestEmbed(t *testing.T) {
	mock := &mockModels{resp: &genai.EmbedContentResponse{
		Embeddings: []*genai.ContentEmbedding{{Values: []float32{0.5, 0.5}}},
	}}
	e := gemini.NewWithModels(mock, gemini.Config{Dimensions: 2})

	vec, err := e.Embed(context.Background(), "hello")
	gt.NoError(t, err)
	gt.Equal(t, vec, []float32{0.5, 0.5})
	gt.Equal(t, mock.gotModel, gemini.DefaultModel)
	gt.Equal(t, mock.gotDims, int32(2))
	gt.Equal(t, e.Dimensions(), 2)
}

func TestEmbed_Errors(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		e := gemini.NewWithModels(&mockModels{err: errors.New("quota")}, gemini.Config{})
		_, err := e.Embed(context.Background(), "x")
		gt.True(t, memory.HasTag(err, memory.ErrTagEmbedding))
	})

	t.Run("empty response", func(t *testing.T) {
		e := gemini.NewWithModels(&mockModels{resp: &genai.EmbedContentResponse{}}, gemini.Config{})
		_, err := e.Embed(context.Background(), "x")
		gt.True(t, memory.HasTag(err, memory.ErrTagEmbedding))
	})
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := gemini.New(context.Background(), gemini.Config{})
	gt.True(t, memory.IsInvalidArgument(err))
}

func TestEmbed_Live(t *testing.T) {
	project := os.Getenv("TEST_GEMINI_PROJECT_ID")
	if project == "" {
		t.Skip("TEST_GEMINI_PROJECT_ID is not set")
	}
	location := os.Getenv("TEST_GEMINI_LOCATION")
	if location == "" {
		location = "us-central1"
	}

	e, err := gemini.New(context.Background(), gemini.Config{Project: project, Location: location})
	gt.NoError(t, err).Required()

	vec, err := e.Embed(context.Background(), "what did I order for lunch yesterday?")
	gt.NoError(t, err)
	gt.A(t, vec).Length(gemini.DefaultDimensions)
}
