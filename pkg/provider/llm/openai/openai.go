// Package openai is the [llm.Provider] for the OpenAI chat completions API
// and compatible servers.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/shared"

	"github.com/MrWong99/frameingest/pkg/provider"
	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

var _ llm.Provider = (*Provider)(nil)

// Provider sends one chat completion per call.
type Provider struct {
	client oai.Client
	model  string
	caps   llm.ModelCapabilities
}

// Option adjusts the connection.
type Option func(*provider.OpenAIConn)

// WithBaseURL targets an OpenAI-compatible server.
func WithBaseURL(url string) Option { return func(c *provider.OpenAIConn) { c.BaseURL = url } }

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(c *provider.OpenAIConn) { c.Organization = org }
}

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option { return func(c *provider.OpenAIConn) { c.Timeout = d } }

// New returns a provider for model.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("openai: model must not be empty")
	}
	conn := provider.OpenAIConn{APIKey: apiKey}
	for _, o := range opts {
		o(&conn)
	}
	client, err := conn.Client()
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return &Provider{client: client, model: model, caps: modelCapabilities(model)}, nil
}

// Complete implements [llm.Provider]. SDK errors are wrapped with %w so the
// HTTP status stays reachable through [provider.StatusCode].
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	params, err := p.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai: response has no choices")
	}
	return &llm.CompletionResponse{
		Content: resp.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}, nil
}

// Capabilities implements [llm.Provider].
func (p *Provider) Capabilities() llm.ModelCapabilities { return p.caps }

func (p *Provider) buildParams(req llm.CompletionRequest) (oai.ChatCompletionNewParams, error) {
	msgs := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		msgs = append(msgs, oai.SystemMessage(req.SystemPrompt))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, oai.SystemMessage(m.Content))
		case "user":
			msgs = append(msgs, oai.UserMessage(m.Content))
		case "assistant":
			msgs = append(msgs, oai.AssistantMessage(m.Content))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: unsupported message role %q", m.Role)
		}
	}
	if len(msgs) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: request has no messages")
	}

	params := oai.ChatCompletionNewParams{Model: shared.ChatModel(p.model), Messages: msgs}
	if req.Temperature != 0 {
		params.Temperature = param.NewOpt(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = param.NewOpt(int64(req.MaxTokens))
	}
	if req.JSONMode && p.caps.SupportsJSONMode {
		params.ResponseFormat = oai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{},
		}
	}
	return params, nil
}

// modelCapabilities knows the limits of the common OpenAI model families and
// falls back to a 128k window for anything else, including models served by
// compatible hosts.
func modelCapabilities(model string) llm.ModelCapabilities {
	caps := llm.ModelCapabilities{ContextWindow: 128_000, MaxOutputTokens: 4_096, SupportsJSONMode: true}
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-4o"):
		caps.MaxOutputTokens = 16_384
	case strings.HasPrefix(m, "gpt-4.1"):
		caps.ContextWindow, caps.MaxOutputTokens = 1_047_576, 32_768
	case strings.HasPrefix(m, "gpt-4-turbo"):
	case strings.HasPrefix(m, "gpt-4"):
		// Early gpt-4 snapshots predate response_format.
		caps.ContextWindow, caps.SupportsJSONMode = 8_192, false
	case strings.HasPrefix(m, "gpt-3.5-turbo"):
		caps.ContextWindow = 16_385
	case strings.HasPrefix(m, "o1-mini"):
		caps.MaxOutputTokens, caps.SupportsJSONMode = 65_536, false
	case strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"), strings.HasPrefix(m, "o4"):
		caps.ContextWindow, caps.MaxOutputTokens = 200_000, 100_000
	}
	return caps
}
