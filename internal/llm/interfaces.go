// Package llm provides the embedding backends that turn question and answer
// text into vectors, plus the Embedder wrapper that enforces the configured
// dimension, timeout and normalization on every call.
package llm

import "context"

// EmbeddingGenerator is implemented by every embedding backend.
// Returned vectors are not guaranteed to be normalized.
type EmbeddingGenerator interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}
