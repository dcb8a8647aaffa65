// Package langchain provides an LLM provider for OpenAI-compatible chat hosts
// (vLLM, LM Studio, LocalAI, llama.cpp server, ...) built on
// github.com/tmc/langchaingo.
package langchain

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/MrWong99/frameingest/pkg/provider"
	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

const anonymousToken = "none"

var _ llm.Provider = (*Provider)(nil)

// Provider implements llm.Provider on top of a langchaingo llms.Model.
type Provider struct {
	model   llms.Model
	name    string
	ctxSize int
}

type config struct {
	token      string
	ctxSize    int
	httpClient *http.Client
}

// Option is a functional option for Provider.
type Option func(*config)

// WithToken sets the bearer token. Without it an anonymous token is used.
func WithToken(token string) Option {
	return func(c *config) {
		c.token = token
	}
}

// WithContextWindow declares the hosted model's context window.
func WithContextWindow(n int) Option {
	return func(c *config) {
		c.ctxSize = n
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// New creates a Provider for model served at the OpenAI-compatible baseURL.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("langchain llm: baseURL must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("langchain llm: model must not be empty")
	}

	cfg := &config{token: anonymousToken, ctxSize: 32_768}
	for _, o := range opts {
		o(cfg)
	}

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(cfg.token),
		openai.WithModel(model),
		openai.WithHTTPClient(provider.StatusDoer{Provider: "langchain", Client: cfg.httpClient}),
	)
	if err != nil {
		return nil, fmt.Errorf("langchain llm: create client: %w", err)
	}
	return newWithModel(client, model, cfg.ctxSize), nil
}

func newWithModel(m llms.Model, name string, ctxSize int) *Provider {
	return &Provider{model: m, name: name, ctxSize: ctxSize}
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	content := buildContent(req)
	if len(content) == 0 {
		return nil, fmt.Errorf("langchain llm: no messages")
	}

	var callOpts []llms.CallOption
	if req.Temperature != 0 {
		callOpts = append(callOpts, llms.WithTemperature(req.Temperature))
	}
	if req.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.JSONMode {
		callOpts = append(callOpts, llms.WithJSONMode())
	}

	resp, err := p.model.GenerateContent(ctx, content, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("langchain llm: generate: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("langchain llm: empty choices in response")
	}
	choice := resp.Choices[0]
	return &llm.CompletionResponse{Content: choice.Content, Usage: usageFrom(choice.GenerationInfo)}, nil
}

// usageFrom reads the token counts langchaingo's openai client stores in
// GenerationInfo. Missing or non-numeric entries stay zero.
func usageFrom(info map[string]any) llm.Usage {
	u := llm.Usage{
		PromptTokens:     intValue(info["PromptTokens"]),
		CompletionTokens: intValue(info["CompletionTokens"]),
		TotalTokens:      intValue(info["TotalTokens"]),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.PromptTokens + u.CompletionTokens
	}
	return u
}

func intValue(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return 0
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	return llm.ModelCapabilities{
		ContextWindow:    p.ctxSize,
		MaxOutputTokens:  4_096,
		SupportsJSONMode: true,
	}
}

func buildContent(req llm.CompletionRequest) []llms.MessageContent {
	var out []llms.MessageContent
	if req.SystemPrompt != "" {
		out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	for _, m := range req.Messages {
		out = append(out, llms.TextParts(roleType(m.Role), m.Content))
	}
	return out
}

func roleType(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}
