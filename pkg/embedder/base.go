// Package embedder provides interfaces for text embedding providers.
//
// It defines the Provider interface that all embedding implementations must
// satisfy, enabling text-to-vector conversion for similarity search. The
// engine treats embedding generation as an external collaborator: provider
// failures are recoverable dependency errors, never fatal to the process.
package embedder

import "context"

// Provider defines the interface for embedding providers.
type Provider interface {
	// Embed converts a text string into a vector embedding.
	//
	// Input longer than the provider's maximum is truncated by the
	// provider; callers should not depend on tail content surviving.
	Embed(ctx context.Context, text string) ([]float64, error)

	// EmbedBatch converts multiple text strings into vector embeddings
	// in one request. The result order matches the input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)

	// Dimensions returns the dimension of vectors produced by this
	// provider.
	Dimensions() int

	// Close closes the provider and releases resources.
	Close() error
}
