// Package mock provides test doubles for the ai package.
//
// The mocks are hand-written function-field doubles. Behavior is injected by
// setting a function field; without one they fall back to deterministic
// defaults.
//
//	mockEmbedder := mock.NewMockEmbedder(4)
//	mockEmbedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
//	    return nil, ai.ErrOutOfMemory
//	}
//
//	// Check call counts and the batch sizes that reached the embedder
//	count := mockEmbedder.CallCount()
//	sizes := mockEmbedder.BatchSizes()
//
// # Default Behavior
//
//   - MockEmbedder: Returns deterministic unit vectors based on a text hash.
//     With OOMAbove set, batches larger than the threshold fail with
//     ai.ErrOutOfMemory, which simulates an accelerator memory limit.
//   - MockProvider: Wraps a MockEmbedder
package mock
