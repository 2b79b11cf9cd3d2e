package mock_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/memory/embedder/mock"
	"github.com/m-mizutani/gt"
)

func TestEmbed_Deterministic(t *testing.T) {
	ctx := context.Background()
	e := mock.New()

	a, err := e.Embed(ctx, "hello")
	gt.NoError(t, err)
	b, err := e.Embed(ctx, "hello")
	gt.NoError(t, err)
	c, err := e.Embed(ctx, "goodbye")
	gt.NoError(t, err)

	gt.A(t, a).Length(mock.DefaultDimensions)
	gt.Equal(t, a, b)
	gt.True(t, a[0] != c[0] || a[1] != c[1])
}

func TestEmbed_UnitLength(t *testing.T) {
	e := mock.New(mock.WithDimensions(16))
	vec, err := e.Embed(context.Background(), "norm me")
	gt.NoError(t, err)
	gt.A(t, vec).Length(16)
	gt.Equal(t, e.Dimensions(), 16)

	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	gt.True(t, math.Abs(sum-1) < 1e-5)
}

func TestEmbed_Error(t *testing.T) {
	e := mock.New(mock.WithError(errors.New("model offline")))
	_, err := e.Embed(context.Background(), "x")
	gt.Error(t, err)
	gt.True(t, memory.HasTag(err, memory.ErrTagEmbedding))
}

func TestEmbed_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := mock.New().Embed(ctx, "x")
	gt.Error(t, err)
}
