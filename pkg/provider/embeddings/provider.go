// Package embeddings is the text-to-vector interface used to embed profile
// text. Backends live in subpackages (openai, ollama, langchain) and a
// scripted double in mock.
package embeddings

import "context"

// Provider is an embedding backend. Every vector one Provider returns has the
// same length, and vectors from different models never share a table.
// Implementations are safe for concurrent use.
type Provider interface {
	// Embed returns the vector for text, passed through verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimensions is the vector length, or zero when unknown up front.
	Dimensions() int
	// ModelID names the embedding model, e.g. "text-embedding-3-small".
	ModelID() string
}
