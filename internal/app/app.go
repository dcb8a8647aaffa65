// Package app wires all frameingest subsystems into a running application.
//
// The App struct owns the full lifecycle: New opens the profile store and
// builds the ingestion pipeline and HTTP server, Run serves requests until
// its context ends, and Shutdown tears everything down in order.
//
// For testing, inject test doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/frameingest/internal/config"
	"github.com/MrWong99/frameingest/internal/enrich"
	"github.com/MrWong99/frameingest/internal/health"
	"github.com/MrWong99/frameingest/internal/httpapi"
	"github.com/MrWong99/frameingest/internal/ingest"
	"github.com/MrWong99/frameingest/internal/observe"
	"github.com/MrWong99/frameingest/internal/profile"
	"github.com/MrWong99/frameingest/pkg/profilestore"
	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

// writeTimeoutMargin is added to the request timeout so that handlers can
// still write their timeout response.
const writeTimeoutMargin = 10 * time.Second

// Providers holds the two backends the pipeline needs. Populated by
// [BuildProviders] via the config registry.
type Providers struct {
	LLM        llm.Provider
	Embeddings embeddings.Provider

	// LLMName and EmbeddingsName label provider metrics.
	LLMName        string
	EmbeddingsName string
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers

	store          profilestore.Store
	metrics        *observe.Metrics
	metricsHandler http.Handler
	logLevel       *slog.LevelVar

	ingester *swapIngester
	handler  http.Handler
	server   *http.Server

	// closers are called in reverse order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for configuring an App.
type Option func(*App)

// WithStore injects a profile store instead of opening one from the config.
// The App does not close an injected store.
func WithStore(s profilestore.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics records to m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(a *App) { a.metricsHandler = h }
}

// WithLogLevel lets config reloads change the level of the handler that
// reads lv.
func WithLogLevel(lv *slog.LevelVar) Option {
	return func(a *App) { a.logLevel = lv }
}

// New creates an App from the given config and providers. Subsystems not
// injected via options are created from cfg.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil || providers.LLM == nil || providers.Embeddings == nil {
		return nil, errors.New("app: llm and embeddings providers are required")
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	if a.logLevel == nil {
		a.logLevel = new(slog.LevelVar)
		a.logLevel.Set(ParseLevel(cfg.Server.LogLevel))
	}

	// 1. Profile store.
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	// 2. Enrichment client and pipeline.
	p, err := a.buildPipeline(cfg.Enrichment)
	if err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init pipeline: %w", err)
	}
	a.ingester = &swapIngester{}
	a.ingester.p.Store(p)

	// 3. HTTP surface.
	a.initHTTP()

	return a, nil
}

// initStore opens the configured profile store unless one was injected.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	s, err := OpenStore(ctx, a.cfg.Store)
	if err != nil {
		return err
	}
	a.store = s
	a.closers = append(a.closers, s.Close)
	return nil
}

// buildPipeline creates an enrichment client tuned by ec and a pipeline on
// top of it.
func (a *App) buildPipeline(ec config.EnrichmentConfig) (*ingest.Pipeline, error) {
	client, err := enrich.New(a.providers.LLM, a.providers.Embeddings,
		EnrichConfig(ec, a.cfg.Store.EmbeddingDimensions),
		enrich.WithMetrics(a.metrics),
		enrich.WithProviderNames(a.providers.LLMName, a.providers.EmbeddingsName),
	)
	if err != nil {
		return nil, err
	}
	return ingest.NewPipeline(client, a.store, ingest.WithMetrics(a.metrics))
}

// providerAvailability reports the breakers of failover wrappers. Plain
// providers have no state to report and always count as available.
func (a *App) providerAvailability() map[string]health.Availability {
	return map[string]health.Availability{
		"llm":        availabilityOf(a.providers.LLM),
		"embeddings": availabilityOf(a.providers.Embeddings),
	}
}

type alwaysAvailable struct{}

func (alwaysAvailable) Available() error { return nil }

func availabilityOf(p any) health.Availability {
	if av, ok := p.(health.Availability); ok {
		return av
	}
	return alwaysAvailable{}
}

func (a *App) initHTTP() {
	hh := health.New(
		health.PingChecker("store", a.store),
		health.AvailabilityChecker("providers", a.providerAvailability()),
	)

	srvOpts := []httpapi.Option{
		httpapi.WithHealth(hh),
		httpapi.WithMetrics(a.metrics),
		httpapi.WithRequestTimeout(a.cfg.Server.RequestTimeout),
	}
	if a.metricsHandler != nil {
		srvOpts = append(srvOpts, httpapi.WithMetricsHandler(a.metricsHandler))
	}
	if a.cfg.Server.MaxBodyBytes > 0 {
		srvOpts = append(srvOpts, httpapi.WithMaxBodyBytes(a.cfg.Server.MaxBodyBytes))
	}
	if a.cfg.Server.RetryAfter > 0 {
		srvOpts = append(srvOpts, httpapi.WithRetryAfter(a.cfg.Server.RetryAfter))
	}

	a.handler = httpapi.New(a.ingester, a.store, srvOpts...).Routes()
	a.server = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.cfg.Server.RequestTimeout + writeTimeoutMargin,
	}
}

// Handler returns the application's HTTP handler.
func (a *App) Handler() http.Handler { return a.handler }

// Store returns the profile store in use.
func (a *App) Store() profilestore.Store { return a.store }

// Run listens on the configured address and serves until ctx is cancelled.
// It returns ctx's error on cancellation, or the listener error if serving
// fails first.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("app: listen: %w", err)
	}
	return a.Serve(ctx, ln)
}

// Serve is like [App.Run] but accepts connections on ln.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	a.server.BaseContext = func(net.Listener) context.Context { return context.WithoutCancel(ctx) }

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.server.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.server.Serve(ln)
		}
		errCh <- err
	}()

	slog.Info("app running", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	}
}

// Shutdown stops accepting requests, waits for in-flight ingestions, and
// releases resources. Safe to call more than once; only the first call has
// any effect.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app shutting down")

		var errs []error
		if err := a.server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http server: %w", err))
		}

		done := make(chan error, 1)
		go func() { done <- a.closeAll() }()
		select {
		case err := <-done:
			if err != nil {
				errs = append(errs, err)
			}
		case <-ctx.Done():
			errs = append(errs, fmt.Errorf("app: shutdown timed out: %w", ctx.Err()))
		}
		shutdownErr = errors.Join(errs...)
	})
	return shutdownErr
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closer error", "err", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// ApplyConfigDiff applies the hot-reloadable parts of d. Changes that need a
// restart are logged.
func (a *App) ApplyConfigDiff(d config.ConfigDiff) {
	if d.LogLevelChanged {
		a.logLevel.Set(ParseLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	if d.EnrichmentChanged {
		p, err := a.buildPipeline(d.NewEnrichment)
		if err != nil {
			slog.Error("enrichment reload failed, keeping previous settings", "err", err)
		} else {
			a.ingester.p.Store(p)
			slog.Info("enrichment settings reloaded")
		}
	}
	for _, section := range d.RestartRequired {
		slog.Warn("config change requires restart", "section", section)
	}
}

// ParseLevel maps a config log level onto slog. Unknown values mean info.
func ParseLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// EnrichConfig converts the YAML enrichment section into client settings.
func EnrichConfig(ec config.EnrichmentConfig, dims int) enrich.Config {
	return enrich.Config{
		SystemPrompt:   ec.SystemPrompt,
		Temperature:    ec.Temperature,
		MaxTokens:      ec.MaxTokens,
		MaxAttempts:    ec.MaxAttempts,
		RetryBaseDelay: ec.RetryBaseDelay,
		RetryMaxDelay:  ec.RetryMaxDelay,
		CallTimeout:    ec.CallTimeout,
		Dimensions:     dims,
	}
}

// swapIngester lets a config reload replace the pipeline without
// interrupting requests that already hold the previous one.
type swapIngester struct {
	p atomic.Pointer[ingest.Pipeline]
}

func (s *swapIngester) Ingest(ctx context.Context, req profile.Request) (*ingest.Result, error) {
	return s.p.Load().Ingest(ctx, req)
}
