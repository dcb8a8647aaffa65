// Package ollama embeds text with a local Ollama server through the official
// github.com/ollama/ollama/api client.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
)

const DefaultBaseURL = "http://localhost:11434"

// Output sizes of the embedding models Ollama ships in its library.
var knownModels = map[string]int{
	"nomic-embed-text":  768,
	"mxbai-embed-large": 1024,
	"all-minilm":        384,
	"bge-m3":            1024,
}

var _ embeddings.Provider = (*Provider)(nil)

// Provider is safe for concurrent use.
type Provider struct {
	client *api.Client
	model  string
	dims   int
}

type config struct {
	timeout time.Duration
	dims    int
}

type Option func(*config)

// WithTimeout bounds each request. Zero leaves only the context deadline.
func WithTimeout(d time.Duration) Option {
	return func(c *config) { c.timeout = d }
}

// WithDimensions sets the reported dimension for models not in the built-in
// table.
func WithDimensions(n int) Option {
	return func(c *config) { c.dims = n }
}

// New targets baseURL, or DefaultBaseURL when empty. Dimensions falls back to
// the known-model table and then to 0.
func New(baseURL, model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama embeddings: model must not be empty")
	}
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: base url: %w", err)
	}
	var cfg config
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.dims == 0 {
		cfg.dims = knownModels[strings.ToLower(strings.SplitN(model, ":", 2)[0])]
	}
	return &Provider{
		client: api.NewClient(base, &http.Client{Timeout: cfg.timeout}),
		model:  model,
		dims:   cfg.dims,
	}, nil
}

// Embed returns the vector for text. Non-2xx answers keep their status in the
// wrapped api.StatusError, which provider.StatusCode understands.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := p.client.Embed(ctx, &api.EmbedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("ollama embeddings: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("ollama embeddings: response carried no vector")
	}
	return resp.Embeddings[0], nil
}

func (p *Provider) Dimensions() int { return p.dims }

func (p *Provider) ModelID() string { return p.model }
