// Package embeddings turns text into unit-length float32 vectors.
//
// An [Embedder] is a raw model backend (Ollama, ONNX Runtime). A [Provider]
// wraps one backend with the contract the rest of recall relies on: input
// truncation, unit normalization, dimension checks, failure mapping to
// memory.ErrModelUnavailable, slow-call warnings and a small LRU cache.
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}
