package resilience

import (
	"context"

	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

// LLMFallback is an [llm.Provider] that fails over between backends.
type LLMFallback struct {
	group *FallbackGroup[llm.Provider]
}

var _ llm.Provider = (*LLMFallback)(nil)

func NewLLMFallback(primary llm.Provider, primaryName string, cfg FallbackConfig) *LLMFallback {
	return &LLMFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

func (f *LLMFallback) AddFallback(name string, provider llm.Provider) {
	f.group.AddFallback(name, provider)
}

func (f *LLMFallback) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return ExecuteWithResult(f.group, func(p llm.Provider) (*llm.CompletionResponse, error) {
		return p.Complete(ctx, req)
	})
}

// Available reports whether at least one backend would accept a call.
func (f *LLMFallback) Available() error { return f.group.Available() }

// Capabilities is the common denominator of all members: the smallest limits,
// and JSON mode only if every member has it.
func (f *LLMFallback) Capabilities() llm.ModelCapabilities {
	caps := f.group.Primary().Capabilities()
	for _, p := range f.group.All() {
		c := p.Capabilities()
		caps.ContextWindow = min(caps.ContextWindow, c.ContextWindow)
		caps.MaxOutputTokens = min(caps.MaxOutputTokens, c.MaxOutputTokens)
		caps.SupportsJSONMode = caps.SupportsJSONMode && c.SupportsJSONMode
	}
	return caps
}
