// Package enrich turns composed profile text into an enrichment result
// (summary, tags, style) and an embedding vector by calling an LLM and an
// embeddings backend.
//
// Both calls are independent and run concurrently in [Client.Enrich]. Each
// call retries transient failures with exponential backoff and bounds every
// attempt with its own timeout. Failures surface as *ServiceError (backend
// failed) or *ParseError (reply had the wrong shape).
package enrich

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/frameingest/internal/observe"
	"github.com/MrWong99/frameingest/internal/resilience"
	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

const (
	opSummarize = "summarize"
	opEmbed     = "embed"
)

var errEmptyEmbedding = errors.New("backend returned an empty embedding")

// Client calls the enrichment backends. It is safe for concurrent use.
type Client struct {
	llm      llm.Provider
	emb      embeddings.Provider
	cfg      Config
	metrics  *observe.Metrics
	llmName  string
	embName  string
	jsonMode bool
}

// Option configures a [Client].
type Option func(*Client)

// WithMetrics records request, error and retry counters to m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithProviderNames sets the provider labels used in metrics.
func WithProviderNames(llmName, embeddingsName string) Option {
	return func(c *Client) {
		c.llmName = llmName
		c.embName = embeddingsName
	}
}

// New creates a Client. Both providers are required.
func New(l llm.Provider, e embeddings.Provider, cfg Config, opts ...Option) (*Client, error) {
	if l == nil {
		return nil, errors.New("enrich: llm provider is required")
	}
	if e == nil {
		return nil, errors.New("enrich: embeddings provider is required")
	}
	c := &Client{
		llm:     l,
		emb:     e,
		cfg:     cfg.withDefaults(),
		llmName: "llm",
		embName: "embeddings",
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	c.jsonMode = l.Capabilities().SupportsJSONMode

	if d := e.Dimensions(); d > 0 && c.cfg.Dimensions > 0 && d != c.cfg.Dimensions {
		return nil, fmt.Errorf("enrich: embeddings model %s produces %d dimensions, configured %d",
			e.ModelID(), d, c.cfg.Dimensions)
	}
	return c, nil
}

// Config returns the effective configuration with defaults applied.
func (c *Client) Config() Config { return c.cfg }

// Summarize asks the LLM for a {summary, tags, style} analysis of text.
// An empty text is sent as-is.
func (c *Client) Summarize(ctx context.Context, text string) (Result, error) {
	ctx, span := observe.StartSpan(ctx, "enrich.summarize")
	defer span.End()
	start := time.Now()
	defer func() { c.metrics.SummarizeDuration.Record(ctx, time.Since(start).Seconds()) }()

	req := llm.CompletionRequest{
		SystemPrompt: c.cfg.SystemPrompt,
		Messages:     []llm.Message{{Role: "user", Content: text}},
		Temperature:  c.cfg.Temperature,
		MaxTokens:    c.cfg.MaxTokens,
		JSONMode:     c.jsonMode,
	}

	var reply string
	err := c.call(ctx, opSummarize, c.llmName, "llm", func(ctx context.Context) error {
		resp, err := c.llm.Complete(ctx, req)
		if err != nil {
			return err
		}
		if resp == nil {
			return &ServiceError{Op: opSummarize, Err: errors.New("backend returned no completion")}
		}
		reply = resp.Content
		c.metrics.RecordTokens(ctx, c.llmName, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return Result{}, err
	}

	res, err := ParseReply(reply)
	if err != nil {
		span.SetStatus(codes.Error, "unparseable reply")
		observe.Logger(ctx).Warn("summarize reply rejected", "err", err)
		return Result{}, err
	}
	return res, nil
}

// Embed returns the embedding vector for text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := observe.StartSpan(ctx, "enrich.embed")
	defer span.End()
	start := time.Now()
	defer func() { c.metrics.EmbedDuration.Record(ctx, time.Since(start).Seconds()) }()

	var vec []float32
	err := c.call(ctx, opEmbed, c.embName, "embeddings", func(ctx context.Context) error {
		v, err := c.emb.Embed(ctx, text)
		if err != nil {
			return err
		}
		vec = v
		return nil
	})
	if err == nil {
		err = c.checkVector(vec)
	}
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return vec, nil
}

func (c *Client) checkVector(vec []float32) error {
	if len(vec) == 0 {
		return &ServiceError{Op: opEmbed, Err: errEmptyEmbedding}
	}
	if c.cfg.Dimensions > 0 && len(vec) != c.cfg.Dimensions {
		return &ServiceError{
			Op:  opEmbed,
			Err: fmt.Errorf("embedding has %d dimensions, want %d", len(vec), c.cfg.Dimensions),
		}
	}
	return nil
}

// Enrich runs Summarize and Embed concurrently. The first failure cancels the
// other call and is returned; no partial result is returned.
func (c *Client) Enrich(ctx context.Context, text string) (Result, []float32, error) {
	g, gctx := errgroup.WithContext(ctx)

	var (
		res Result
		vec []float32
	)
	g.Go(func() error {
		var err error
		res, err = c.Summarize(gctx, text)
		return err
	})
	g.Go(func() error {
		var err error
		vec, err = c.Embed(gctx, text)
		return err
	})
	if err := g.Wait(); err != nil {
		return Result{}, nil, err
	}
	return res, vec, nil
}

// call runs fn with per-attempt timeouts and retries transient failures.
// Every error it returns is a *ServiceError.
func (c *Client) call(ctx context.Context, op, providerName, kind string, fn func(context.Context) error) error {
	policy := resilience.RetryPolicy{
		MaxAttempts: c.cfg.MaxAttempts,
		BaseDelay:   c.cfg.RetryBaseDelay,
		MaxDelay:    c.cfg.RetryMaxDelay,
		Retryable:   IsTransient,
		OnRetry: func(attempt int, err error) {
			c.metrics.RecordRetry(ctx, op)
			observe.Logger(ctx).Info("retrying enrichment call",
				"op", op, "attempt", attempt, "err", err)
		},
	}

	err := resilience.Retry(ctx, policy, func(ctx context.Context) error {
		actx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()

		err := fn(actx)
		if err == nil {
			c.metrics.RecordProviderRequest(ctx, providerName, kind, "ok")
			return nil
		}
		c.metrics.RecordProviderRequest(ctx, providerName, kind, "error")
		c.metrics.RecordProviderError(ctx, providerName, kind)

		// An attempt that hit its own timeout while the caller is still
		// waiting is a transient failure.
		if ctx.Err() == nil && errors.Is(actx.Err(), context.DeadlineExceeded) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return Classify(op, err)
	})
	if err != nil {
		return Classify(op, err)
	}
	return nil
}
