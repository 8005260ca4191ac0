package embed

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/steamset/ai"
	"github.com/poiesic/steamset/ai/mock"
)

func texts(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("text %d", i)
	}
	return out
}

func TestSplitEmbed_NoOOM(t *testing.T) {
	embedder := mock.NewMockEmbedder(4)
	input := texts(10)

	vectors, err := SplitEmbed(context.Background(), input, 4, embedder.EmbedTexts)
	require.NoError(t, err)
	require.Len(t, vectors, 10)
	assert.Equal(t, []int{4, 4, 2}, embedder.BatchSizes())
	for i, v := range vectors {
		assert.Equal(t, mock.DeterministicVector(input[i], 4), v)
	}
}

func TestSplitEmbed_HalvesUntilBatchFits(t *testing.T) {
	for _, limit := range []int{1, 2, 3, 5, 7} {
		t.Run(fmt.Sprintf("limit %d", limit), func(t *testing.T) {
			embedder := mock.NewMockEmbedder(4)
			embedder.OOMAbove = limit
			input := texts(16)

			var splits []int
			vectors, err := splitEmbed(context.Background(), input, 16, embedder.EmbedTexts, func(size int) {
				splits = append(splits, size)
			})
			require.NoError(t, err)
			require.Len(t, vectors, len(input))
			for i, v := range vectors {
				assert.Equal(t, mock.DeterministicVector(input[i], 4), v, "vector %d out of order", i)
			}
			assert.NotEmpty(t, splits)
			for _, size := range splits {
				assert.Greater(t, size, limit)
			}

			// Every batch at or under the limit succeeded, so the number of
			// texts in successful batches is the input size.
			var embedded int
			for _, size := range embedder.BatchSizes() {
				if size <= limit {
					embedded += size
				}
			}
			assert.Equal(t, len(input), embedded)
		})
	}
}

func TestSplitEmbed_SingleItemOOM(t *testing.T) {
	embedder := mock.NewMockEmbedder(4)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, fmt.Errorf("cuda: %w", ai.ErrOutOfMemory)
	}

	_, err := SplitEmbed(context.Background(), texts(4), 4, embedder.EmbedTexts)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOOMAtMinimumBatch)
	assert.ErrorIs(t, err, ai.ErrOutOfMemory)
	// 4 -> 2 -> 1 fails on the first single item.
	assert.Equal(t, []int{4, 2, 1}, embedder.BatchSizes())
}

func TestSplitEmbed_OtherErrorsAreNotSplit(t *testing.T) {
	boom := errors.New("connection refused")
	embedder := mock.NewMockEmbedder(4)
	embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, boom
	}

	_, err := SplitEmbed(context.Background(), texts(8), 8, embedder.EmbedTexts)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, embedder.CallCount())
}

func TestSplitEmbed_ShortResponse(t *testing.T) {
	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{{1, 0, 0, 0}}, nil
	}
	_, err := SplitEmbed(context.Background(), texts(3), 3, embed)
	assert.Error(t, err)
}

func TestSplitEmbed_Empty(t *testing.T) {
	embedder := mock.NewMockEmbedder(4)
	vectors, err := SplitEmbed(context.Background(), nil, 4, embedder.EmbedTexts)
	require.NoError(t, err)
	assert.Empty(t, vectors)
	assert.Zero(t, embedder.CallCount())
}
