// Package mock is a scripted [embeddings.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
)

var _ embeddings.Provider = (*Provider)(nil)

// EmbedCall is one recorded Embed invocation.
type EmbedCall struct {
	Text string
}

// Provider answers Embed with EmbedFunc when set, otherwise with EmbedResult
// and EmbedErr. Configure it before use.
type Provider struct {
	EmbedResult []float32
	EmbedErr    error
	// EmbedFunc receives the 1-based call number.
	EmbedFunc func(ctx context.Context, call int, text string) ([]float32, error)

	DimensionsValue int
	ModelIDValue    string

	mu         sync.Mutex
	EmbedCalls []EmbedCall
}

// Embed records the call and answers it.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.EmbedCalls = append(p.EmbedCalls, EmbedCall{Text: text})
	n := len(p.EmbedCalls)
	p.mu.Unlock()

	if p.EmbedFunc != nil {
		return p.EmbedFunc(ctx, n, text)
	}
	return p.EmbedResult, p.EmbedErr
}

// Dimensions returns DimensionsValue.
func (p *Provider) Dimensions() int { return p.DimensionsValue }

// ModelID returns ModelIDValue.
func (p *Provider) ModelID() string { return p.ModelIDValue }

// CallCount returns how many times Embed ran.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.EmbedCalls)
}
