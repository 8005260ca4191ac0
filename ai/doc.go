// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ai provides abstractions for the embedding service used by steamset.
//
// The core pipeline depends on the Embedder interface only, so the
// embedding generator can be tested without a model server.
//
// # Implementation Packages
//
//   - ai/openai: Production implementation using OpenAI-compatible APIs
//     (Ollama, llama.cpp server, text-embeddings-inference, OpenAI)
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// Public constructors (openai.NewProvider, openai.NewEmbedder) return
// interface types. Test constructors (mock.NewMockEmbedder) return concrete
// types so tests can inject behavior and inspect call counts.
//
// # Memory exhaustion
//
// A server that runs out of accelerator memory reports it as an ordinary
// error. Implementations translate such failures into errors wrapping
// ErrOutOfMemory, which the embedding generator answers by halving the
// batch.
//
//	config := ai.NewConfig(ai.WithEmbeddingModel("bge-m3"), ai.WithDimension(1024))
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer provider.Close()
//
//	vectors, err := provider.Embedder().EmbedTexts(ctx, texts)
//	if errors.Is(err, ai.ErrOutOfMemory) {
//	    // retry with smaller batches
//	}
package ai
