// Package openai is the [embeddings.Provider] for the OpenAI embeddings API
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

	"github.com/MrWong99/frameingest/pkg/provider"
	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
)

// DefaultModel is used when New gets an empty model.
const DefaultModel = oai.EmbeddingModelTextEmbedding3Small

var _ embeddings.Provider = (*Provider)(nil)

// Provider embeds one text per call.
type Provider struct {
	client oai.Client
	model  string
	// dims is the configured output length, zero for the model's native one.
	dims int
	// shorten sends dims as the dimensions request field.
	shorten bool
}

type config struct {
	conn provider.OpenAIConn
	dims int
}

// Option adjusts the provider.
type Option func(*config)

// WithBaseURL targets an OpenAI-compatible server.
func WithBaseURL(url string) Option { return func(c *config) { c.conn.BaseURL = url } }

// WithOrganization sends the OpenAI-Organization header.
func WithOrganization(org string) Option { return func(c *config) { c.conn.Organization = org } }

// WithTimeout bounds each HTTP request.
func WithTimeout(d time.Duration) Option { return func(c *config) { c.conn.Timeout = d } }

// WithDimensions sets the vector length the model produces. text-embedding-3
// models are asked to shorten to n; for any other model, e.g. one served by a
// compatible host, n is only reported by Dimensions.
func WithDimensions(n int) Option { return func(c *config) { c.dims = n } }

// New returns a provider for model, or DefaultModel when model is empty.
func New(apiKey, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		model = DefaultModel
	}
	cfg := config{conn: provider.OpenAIConn{APIKey: apiKey}}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.dims < 0 {
		return nil, errors.New("openai embeddings: dimensions must not be negative")
	}
	client, err := cfg.conn.Client()
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}

	return &Provider{
		client:  client,
		model:   model,
		dims:    cfg.dims,
		shorten: cfg.dims > 0 && strings.Contains(strings.ToLower(model), "text-embedding-3"),
	}, nil
}

// Embed implements [embeddings.Provider].
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	params := oai.EmbeddingNewParams{
		Model: p.model,
		Input: oai.EmbeddingNewParamsInputUnion{OfString: param.NewOpt(text)},
	}
	if p.shorten {
		params.Dimensions = param.NewOpt(int64(p.dims))
	}

	resp, err := p.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embeddings: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, errors.New("openai embeddings: response has no data")
	}
	src := resp.Data[0].Embedding
	vec := make([]float32, len(src))
	for i, v := range src {
		vec[i] = float32(v)
	}
	return vec, nil
}

// Native output lengths of OpenAI's own embedding models.
var nativeDims = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// Dimensions returns the configured length, else the native length of a known
// OpenAI model, else 0 for unknown.
func (p *Provider) Dimensions() int {
	if p.dims > 0 {
		return p.dims
	}
	return nativeDims[strings.ToLower(p.model)]
}

// ModelID implements [embeddings.Provider].
func (p *Provider) ModelID() string { return p.model }
