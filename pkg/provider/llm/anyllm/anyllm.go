// Package anyllm adapts github.com/mozilla-ai/any-llm-go to [llm.Provider], so
// a single code path reaches Anthropic, Gemini, Ollama and the other vendors
// that library speaks to.
package anyllm

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/mozilla-ai/any-llm-go/providers/anthropic"
	"github.com/mozilla-ai/any-llm-go/providers/deepseek"
	"github.com/mozilla-ai/any-llm-go/providers/gemini"
	"github.com/mozilla-ai/any-llm-go/providers/groq"
	"github.com/mozilla-ai/any-llm-go/providers/llamacpp"
	"github.com/mozilla-ai/any-llm-go/providers/llamafile"
	"github.com/mozilla-ai/any-llm-go/providers/mistral"
	"github.com/mozilla-ai/any-llm-go/providers/ollama"
	anyllmoai "github.com/mozilla-ai/any-llm-go/providers/openai"

	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

// any-llm-go has no portable response_format switch, so JSON mode is asked
// for in the system prompt instead.
const jsonOnlyInstruction = "Respond with a single JSON object and no surrounding prose or code fences."

type backendFunc func(...anyllmlib.Option) (anyllmlib.Provider, error)

func wrap[P anyllmlib.Provider](f func(...anyllmlib.Option) (P, error)) backendFunc {
	return func(opts ...anyllmlib.Option) (anyllmlib.Provider, error) { return f(opts...) }
}

var backends = map[string]backendFunc{
	"openai":    wrap(anyllmoai.New),
	"anthropic": wrap(anthropic.New),
	"gemini":    wrap(gemini.New),
	"ollama":    wrap(ollama.New),
	"deepseek":  wrap(deepseek.New),
	"mistral":   wrap(mistral.New),
	"groq":      wrap(groq.New),
	"llamacpp":  wrap(llamacpp.New),
	"llamafile": wrap(llamafile.New),
}

// Vendors returns the vendor names New accepts, sorted.
func Vendors() []string {
	return slices.Sorted(maps.Keys(backends))
}

var _ llm.Provider = (*Provider)(nil)

type Provider struct {
	backend anyllmlib.Provider
	vendor  string
	model   string
	caps    llm.ModelCapabilities
}

// New builds a provider for vendor (case-insensitive, see [Vendors]). Without
// an API key option the backend reads the vendor's usual environment
// variable, e.g. ANTHROPIC_API_KEY.
func New(vendor, model string, opts ...anyllmlib.Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("anyllm: model must not be empty")
	}
	name := strings.ToLower(vendor)
	mk, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("anyllm: unsupported vendor %q (supported: %s)", vendor, strings.Join(Vendors(), ", "))
	}
	backend, err := mk(opts...)
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s backend: %w", name, err)
	}
	return &Provider{backend: backend, vendor: name, model: model, caps: modelCapabilities(model)}, nil
}

func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	resp, err := p.backend.Completion(ctx, p.buildParams(req))
	if err != nil {
		return nil, fmt.Errorf("anyllm: %s completion: %w", p.vendor, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("anyllm: %s returned no choices", p.vendor)
	}

	out := &llm.CompletionResponse{Content: resp.Choices[0].Message.ContentString()}
	if u := resp.Usage; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     u.PromptTokens,
			CompletionTokens: u.CompletionTokens,
			TotalTokens:      u.TotalTokens,
		}
	}
	return out, nil
}

func (p *Provider) Capabilities() llm.ModelCapabilities { return p.caps }

func (p *Provider) buildParams(req llm.CompletionRequest) anyllmlib.CompletionParams {
	system := req.SystemPrompt
	if req.JSONMode {
		system = strings.TrimLeft(system+"\n"+jsonOnlyInstruction, "\n")
	}

	msgs := make([]anyllmlib.Message, 0, len(req.Messages)+1)
	if system != "" {
		msgs = append(msgs, anyllmlib.Message{Role: anyllmlib.RoleSystem, Content: system})
	}
	for _, m := range req.Messages {
		msgs = append(msgs, anyllmlib.Message{Role: m.Role, Content: m.Content})
	}

	params := anyllmlib.CompletionParams{Model: p.model, Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = &req.Temperature
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = &req.MaxTokens
	}
	return params
}

// Ordered: the first matching prefix wins.
var knownModels = []struct {
	prefix    string
	window    int
	maxOutput int
}{
	{"gpt-4o", 128_000, 16_384},
	{"gpt-4-turbo", 128_000, 4_096},
	{"gpt-4", 8_192, 4_096},
	{"gpt-3.5-turbo", 16_385, 4_096},
	{"claude-3-opus", 200_000, 4_096},
	{"claude", 200_000, 8_192},
	{"gemini-1.5-pro", 2_097_152, 8_192},
	{"gemini-1.5-flash", 1_048_576, 8_192},
	{"gemini-2.0-flash", 1_048_576, 8_192},
	{"gemini", 128_000, 8_192},
}

// JSON mode is never reported as native because it is prompt-enforced here.
func modelCapabilities(model string) llm.ModelCapabilities {
	lower := strings.ToLower(model)
	for _, k := range knownModels {
		if strings.HasPrefix(lower, k.prefix) {
			return llm.ModelCapabilities{ContextWindow: k.window, MaxOutputTokens: k.maxOutput}
		}
	}
	return llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096}
}
