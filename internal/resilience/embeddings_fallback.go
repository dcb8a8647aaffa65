package resilience

import (
	"context"

	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
)

// EmbeddingsFallback implements [embeddings.Provider] with failover across
// several embedding backends. All entries must produce vectors of the same
// length; [NewEmbeddingsFallback] callers are expected to check Dimensions
// before adding a fallback.
type EmbeddingsFallback struct {
	group *FallbackGroup[embeddings.Provider]
}

var _ embeddings.Provider = (*EmbeddingsFallback)(nil)

// NewEmbeddingsFallback creates an [EmbeddingsFallback] with primary as the
// preferred backend.
func NewEmbeddingsFallback(primary embeddings.Provider, primaryName string, cfg FallbackConfig) *EmbeddingsFallback {
	return &EmbeddingsFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional embeddings provider as a fallback.
func (f *EmbeddingsFallback) AddFallback(name string, provider embeddings.Provider) {
	f.group.AddFallback(name, provider)
}

// Embed computes the vector with the first healthy provider.
func (f *EmbeddingsFallback) Embed(ctx context.Context, text string) ([]float32, error) {
	return ExecuteWithResult(f.group, func(p embeddings.Provider) ([]float32, error) {
		return p.Embed(ctx, text)
	})
}

// Available reports whether at least one backend would accept a call.
func (f *EmbeddingsFallback) Available() error { return f.group.Available() }

// Dimensions returns the primary's vector length.
func (f *EmbeddingsFallback) Dimensions() int {
	return f.group.Primary().Dimensions()
}

// ModelID returns the primary's model identifier.
func (f *EmbeddingsFallback) ModelID() string {
	return f.group.Primary().ModelID()
}
