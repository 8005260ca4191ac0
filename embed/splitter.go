package embed

import (
	"context"
	"errors"
	"fmt"

	"github.com/poiesic/steamset/ai"
)

// EmbedFunc embeds one sub-batch. It returns an error wrapping
// ai.ErrOutOfMemory when the batch does not fit.
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// SplitEmbed embeds texts in sub-batches of batchSize. When a sub-batch runs
// out of memory it is split in half and each half is embedded on its own,
// recursively. A single text that runs out of memory fails with
// ErrOOMAtMinimumBatch. Output order matches input order and no text is
// dropped. Other errors are returned unchanged.
func SplitEmbed(ctx context.Context, texts []string, batchSize int, embed EmbedFunc) ([][]float32, error) {
	return splitEmbed(ctx, texts, batchSize, embed, nil)
}

// splitEmbed is SplitEmbed with a hook called with the size of every
// sub-batch that had to be split.
func splitEmbed(ctx context.Context, texts []string, batchSize int, embed EmbedFunc, onSplit func(size int)) ([][]float32, error) {
	if batchSize < 1 {
		batchSize = 1
	}
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		vectors, err := embedOrHalve(ctx, texts[start:end], embed, onSplit)
		if err != nil {
			return nil, err
		}
		out = append(out, vectors...)
	}
	return out, nil
}

func embedOrHalve(ctx context.Context, texts []string, embed EmbedFunc, onSplit func(size int)) ([][]float32, error) {
	vectors, err := embed(ctx, texts)
	if err == nil {
		if len(vectors) != len(texts) {
			return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
		}
		return vectors, nil
	}
	if !errors.Is(err, ai.ErrOutOfMemory) {
		return nil, err
	}
	if len(texts) == 1 {
		return nil, fmt.Errorf("%w (text length %d): %w", ErrOOMAtMinimumBatch, len(texts[0]), err)
	}

	if onSplit != nil {
		onSplit(len(texts))
	}
	mid := len(texts) / 2
	left, err := embedOrHalve(ctx, texts[:mid], embed, onSplit)
	if err != nil {
		return nil, err
	}
	right, err := embedOrHalve(ctx, texts[mid:], embed, onSplit)
	if err != nil {
		return nil, err
	}
	return append(left, right...), nil
}
