package mock

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/steamset/ai"
)

func TestMockEmbedder_Deterministic(t *testing.T) {
	m := NewMockEmbedder(8)
	a, err := m.EmbedText(context.Background(), "portal")
	require.NoError(t, err)
	b, err := m.EmbedText(context.Background(), "portal")
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Len(t, a, 8)

	var sum float64
	for _, v := range a {
		sum += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	assert.Equal(t, 2, m.CallCount())
}

func TestMockEmbedder_SimulatedOOM(t *testing.T) {
	m := NewMockEmbedder(4)
	m.OOMAbove = 2

	_, err := m.EmbedTexts(context.Background(), []string{"a", "b", "c"})
	assert.ErrorIs(t, err, ai.ErrOutOfMemory)

	vectors, err := m.EmbedTexts(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, []int{3, 2}, m.BatchSizes())

	m.Reset()
	assert.Zero(t, m.CallCount())
	assert.Empty(t, m.BatchSizes())
}

func TestMockProvider(t *testing.T) {
	provider := NewMockProvider(ai.NewConfig(ai.WithDimension(3)))
	defer provider.Close()

	vec, err := provider.Embedder().EmbedText(context.Background(), "x")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.Equal(t, 3, provider.Config().Dimension)
	assert.Equal(t, 1, provider.(*MockProvider).GetMockEmbedder().CallCount())
}
