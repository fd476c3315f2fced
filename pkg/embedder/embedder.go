// Package embedder turns text into vector embeddings via an external
// provider.
package embedder

import "context"

// Embedder converts text to vector embeddings.
type Embedder interface {
	// Embed converts a single text to a vector embedding. An empty result
	// with a nil error means the provider returned nothing for the input;
	// callers decide how to treat that.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts to vector embeddings, preserving
	// input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension this embedder produces.
	Dimension() int
}
