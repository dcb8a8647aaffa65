// Package langchain provides an embeddings provider for OpenAI-compatible
// hosts (vLLM, LM Studio, LocalAI, llama.cpp server, ...) built on
// github.com/tmc/langchaingo.
package langchain

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/MrWong99/frameingest/pkg/provider"
	provembeddings "github.com/MrWong99/frameingest/pkg/provider/embeddings"
)

// anonymousToken is sent to hosts that do not check credentials.
const anonymousToken = "none"

var _ provembeddings.Provider = (*Provider)(nil)

// Provider implements embeddings.Provider through a langchaingo embedder.
type Provider struct {
	embedder   embeddings.Embedder
	model      string
	dimensions int
}

type config struct {
	token      string
	dimensions int
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

// WithDimensions declares the vector length the hosted model produces.
func WithDimensions(n int) Option {
	return func(c *config) {
		c.dimensions = n
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(cfg *config) {
		cfg.httpClient = c
	}
}

// New creates a Provider talking to the OpenAI-compatible API at baseURL.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("langchain embeddings: baseURL must not be empty")
	}
	if model == "" {
		return nil, fmt.Errorf("langchain embeddings: model must not be empty")
	}

	cfg := &config{token: anonymousToken, httpClient: http.DefaultClient}
	for _, o := range opts {
		o(cfg)
	}

	client, err := openai.New(
		openai.WithBaseURL(baseURL),
		openai.WithToken(cfg.token),
		openai.WithEmbeddingModel(model),
		openai.WithHTTPClient(provider.StatusDoer{Provider: "langchain", Client: cfg.httpClient}),
	)
	if err != nil {
		return nil, fmt.Errorf("langchain embeddings: create client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(false))
	if err != nil {
		return nil, fmt.Errorf("langchain embeddings: create embedder: %w", err)
	}

	return &Provider{embedder: embedder, model: model, dimensions: cfg.dimensions}, nil
}

// Embed implements embeddings.Provider. Newlines are kept: the composed
// profile text uses them as section separators.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.embedder.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("langchain embeddings: embed: %w", err)
	}
	if len(vecs) == 0 || len(vecs[0]) == 0 {
		return nil, fmt.Errorf("langchain embeddings: empty response")
	}
	return vecs[0], nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int { return p.dimensions }

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string { return p.model }
