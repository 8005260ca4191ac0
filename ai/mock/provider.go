package mock

import "github.com/poiesic/steamset/ai"

// MockProvider is a test double for ai.AIProvider.
type MockProvider struct {
	embedder *MockEmbedder
	config   ai.Config
}

// NewMockProvider creates a new mock provider whose embedder produces vectors
// of config.Dimension.
//
// Returns ai.AIProvider interface for consistency with production constructors.
// Use GetMockEmbedder() to access the concrete type for test assertions.
func NewMockProvider(config *ai.Config) ai.AIProvider {
	return &MockProvider{
		embedder: NewMockEmbedder(config.Dimension),
		config:   *config,
	}
}

// NewMockProviderWithEmbedder creates a mock provider around a custom embedder.
func NewMockProviderWithEmbedder(embedder *MockEmbedder, config *ai.Config) ai.AIProvider {
	return &MockProvider{
		embedder: embedder,
		config:   *config,
	}
}

// Embedder returns the mock embedder.
func (p *MockProvider) Embedder() ai.Embedder {
	return p.embedder
}

// Config returns the configuration given at construction.
func (p *MockProvider) Config() ai.Config {
	return p.config
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}

// GetMockEmbedder returns the underlying mock embedder for test assertions.
func (p *MockProvider) GetMockEmbedder() *MockEmbedder {
	return p.embedder
}
