// Package mock is a scripted [llm.Provider] for tests.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall is one recorded Complete invocation.
type CompleteCall struct {
	Req llm.CompletionRequest
	// HadDeadline reports whether the call's context carried a deadline.
	HadDeadline bool
}

// Provider answers Complete with CompleteFunc when set, otherwise with
// CompleteResponse and CompleteErr. Configure it before use.
type Provider struct {
	CompleteResponse *llm.CompletionResponse
	CompleteErr      error
	// CompleteFunc receives the 1-based call number so tests can script
	// sequences such as "fail twice, then succeed".
	CompleteFunc func(ctx context.Context, call int, req llm.CompletionRequest) (*llm.CompletionResponse, error)

	ModelCapabilities llm.ModelCapabilities

	mu            sync.Mutex
	CompleteCalls []CompleteCall
}

// Complete records the call and answers it.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	_, hasDeadline := ctx.Deadline()
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Req: req, HadDeadline: hasDeadline})
	n := len(p.CompleteCalls)
	p.mu.Unlock()

	if p.CompleteFunc != nil {
		return p.CompleteFunc(ctx, n, req)
	}
	return p.CompleteResponse, p.CompleteErr
}

// Capabilities returns ModelCapabilities.
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.ModelCapabilities }

// CallCount returns how many times Complete ran.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}
