package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"slices"
	"strings"
	"testing"
	"time"

	"go.opentelemetry.io/otel/metric/noop"

	"github.com/MrWong99/frameingest/internal/app"
	"github.com/MrWong99/frameingest/internal/config"
	"github.com/MrWong99/frameingest/internal/observe"
	"github.com/MrWong99/frameingest/internal/resilience"
	storemock "github.com/MrWong99/frameingest/pkg/profilestore/mock"
	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
	embmock "github.com/MrWong99/frameingest/pkg/provider/embeddings/mock"
	"github.com/MrWong99/frameingest/pkg/provider/llm"
	llmmock "github.com/MrWong99/frameingest/pkg/provider/llm/mock"
)

const ingestBody = `{"profile":{"fid":1,"displayName":"Ann","username":"ann","bio":"dev"},"casts":[{"text":"hello"}]}`

// testConfig returns a minimal config for a three-dimension embedding model.
func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr:     "127.0.0.1:0",
			LogLevel:       config.LogInfo,
			RequestTimeout: 5 * time.Second,
		},
		Store: config.StoreConfig{
			Driver:              config.StoreBadger,
			EmbeddingDimensions: 3,
		},
	}
}

// testProviders returns mock providers that always succeed.
func testProviders() (*app.Providers, *llmmock.Provider) {
	l := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: `{"summary":"s","tags":["go"],"style":"terse"}`},
	}
	e := &embmock.Provider{EmbedResult: []float32{0.1, 0.2, 0.3}, DimensionsValue: 3}
	return &app.Providers{LLM: l, Embeddings: e, LLMName: "mock", EmbeddingsName: "mock"}, l
}

func newTestApp(t *testing.T, opts ...app.Option) (*app.App, *storemock.Store, *llmmock.Provider) {
	t.Helper()
	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	store := storemock.New()
	providers, l := testProviders()
	opts = append([]app.Option{app.WithStore(store), app.WithMetrics(m)}, opts...)
	a, err := app.New(context.Background(), testConfig(), providers, opts...)
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	return a, store, l
}

func postIngest(t *testing.T, h http.Handler) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/ingest-user", strings.NewReader(ingestBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresProviders(t *testing.T) {
	t.Parallel()

	_, err := app.New(context.Background(), testConfig(), &app.Providers{LLM: &llmmock.Provider{}},
		app.WithStore(storemock.New()))
	if err == nil {
		t.Fatal("expected error when embeddings provider is missing")
	}
}

func TestNew_IngestEndToEnd(t *testing.T) {
	t.Parallel()

	a, store, _ := newTestApp(t)
	rec := postIngest(t, a.Handler())
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if store.Len() != 1 {
		t.Errorf("stored records = %d, want 1", store.Len())
	}
	got, err := store.Get(context.Background(), 1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Summary != "s" || got.Username != "ann" {
		t.Errorf("stored profile = %+v", got)
	}
	if a.Store() != store {
		t.Error("Store() should return the injected store")
	}
}

func TestNew_ReadyzPingsStore(t *testing.T) {
	t.Parallel()

	a, store, _ := newTestApp(t)
	store.PingErr = errors.New("down")

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz status = %d, want 503", rec.Code)
	}
}

func TestNew_ReadyzFailsWhenEveryLLMBreakerIsOpen(t *testing.T) {
	t.Parallel()

	m, err := observe.NewMetrics(noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	providers, _ := testProviders()
	down := &llmmock.Provider{CompleteErr: errors.New("503 overloaded")}
	fb := resilience.NewLLMFallback(down, "primary", resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
	})
	fb.AddFallback("backup", down)
	providers.LLM = fb

	a, err := app.New(context.Background(), testConfig(), providers, app.WithStore(storemock.New()), app.WithMetrics(m))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	readyz := func() int {
		rec := httptest.NewRecorder()
		a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		return rec.Code
	}

	if code := readyz(); code != http.StatusOK {
		t.Fatalf("readyz before failures = %d, want 200", code)
	}
	if _, err := fb.Complete(context.Background(), llm.CompletionRequest{}); err == nil {
		t.Fatal("expected both backends to fail")
	}
	if code := readyz(); code != http.StatusServiceUnavailable {
		t.Errorf("readyz with all breakers open = %d, want 503", code)
	}
}

func TestApplyConfigDiff_ReloadsEnrichment(t *testing.T) {
	t.Parallel()

	a, _, l := newTestApp(t)
	if rec := postIngest(t, a.Handler()); rec.Code != http.StatusOK {
		t.Fatalf("first ingest status = %d", rec.Code)
	}

	a.ApplyConfigDiff(config.ConfigDiff{
		EnrichmentChanged: true,
		NewEnrichment:     config.EnrichmentConfig{SystemPrompt: "be brief", Temperature: 0.2},
	})
	if rec := postIngest(t, a.Handler()); rec.Code != http.StatusOK {
		t.Fatalf("second ingest status = %d", rec.Code)
	}

	if n := l.CallCount(); n != 2 {
		t.Fatalf("Complete calls = %d, want 2", n)
	}
	second := l.CompleteCalls[1].Req
	if second.SystemPrompt != "be brief" || second.Temperature != 0.2 {
		t.Errorf("reloaded request = %q / %v", second.SystemPrompt, second.Temperature)
	}
	if first := l.CompleteCalls[0].Req; first.Temperature != 0.7 {
		t.Errorf("first request temperature = %v, want 0.7", first.Temperature)
	}
}

func TestApplyConfigDiff_LogLevel(t *testing.T) {
	t.Parallel()

	lv := new(slog.LevelVar)
	a, _, _ := newTestApp(t, app.WithLogLevel(lv))
	a.ApplyConfigDiff(config.ConfigDiff{LogLevelChanged: true, NewLogLevel: config.LogDebug})
	if lv.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", lv.Level())
	}
}

func TestServe_StopsOnCancel(t *testing.T) {
	t.Parallel()

	a, _, _ := newTestApp(t)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Serve returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("Shutdown: %v", err)
	}
	// Second call is a no-op.
	if err := a.Shutdown(shutdownCtx); err != nil {
		t.Errorf("second Shutdown: %v", err)
	}
}

func TestShutdown_DoesNotCloseInjectedStore(t *testing.T) {
	t.Parallel()

	a, store, _ := newTestApp(t)
	if err := a.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if store.Closed() {
		t.Error("injected store should stay open")
	}
}

func TestOpenStore(t *testing.T) {
	t.Parallel()

	s, err := app.OpenStore(context.Background(), config.StoreConfig{Driver: config.StoreBadger, EmbeddingDimensions: 3})
	if err != nil {
		t.Fatalf("OpenStore(badger): %v", err)
	}
	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}

	if _, err := app.OpenStore(context.Background(), config.StoreConfig{Driver: "sqlite"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestRegisterBuiltinProviders(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	app.RegisterBuiltinProviders(reg)

	for _, name := range config.ValidProviderNames["llm"] {
		if !slices.Contains(reg.Names("llm"), name) {
			t.Errorf("llm provider %q not registered", name)
		}
	}
	for _, name := range config.ValidProviderNames["embeddings"] {
		if !slices.Contains(reg.Names("embeddings"), name) {
			t.Errorf("embeddings provider %q not registered", name)
		}
	}

	p, err := reg.CreateEmbeddings(config.ProviderEntry{
		Name:    "ollama",
		Model:   "nomic-embed-text",
		Options: map[string]any{"dimensions": 768, "timeout": "20s"},
	})
	if err != nil {
		t.Fatalf("CreateEmbeddings(ollama): %v", err)
	}
	if p.Dimensions() != 768 {
		t.Errorf("Dimensions = %d, want 768", p.Dimensions())
	}
}

func mockRegistry() *config.Registry {
	reg := config.NewRegistry()
	for _, name := range []string{"primary", "backup"} {
		reg.RegisterLLM(name, func(config.ProviderEntry) (llm.Provider, error) {
			return &llmmock.Provider{}, nil
		})
		reg.RegisterEmbeddings(name, func(config.ProviderEntry) (embeddings.Provider, error) {
			return &embmock.Provider{DimensionsValue: 3}, nil
		})
	}
	return reg
}

func TestBuildProviders(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers = config.ProvidersConfig{
		LLM:        config.ProviderEntry{Name: "primary"},
		Embeddings: config.ProviderEntry{Name: "primary"},
	}

	ps, err := app.BuildProviders(cfg, mockRegistry())
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if _, ok := ps.LLM.(*llmmock.Provider); !ok {
		t.Errorf("LLM = %T, want the primary without fallbacks", ps.LLM)
	}
	if ps.LLMName != "primary" || ps.EmbeddingsName != "primary" {
		t.Errorf("names = %q / %q", ps.LLMName, ps.EmbeddingsName)
	}
}

func TestBuildProviders_Fallbacks(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers = config.ProvidersConfig{
		LLM:                 config.ProviderEntry{Name: "primary"},
		Embeddings:          config.ProviderEntry{Name: "primary"},
		LLMFallbacks:        []config.ProviderEntry{{Name: "backup"}},
		EmbeddingsFallbacks: []config.ProviderEntry{{Name: "backup"}},
	}

	ps, err := app.BuildProviders(cfg, mockRegistry())
	if err != nil {
		t.Fatalf("BuildProviders: %v", err)
	}
	if _, ok := ps.LLM.(*resilience.LLMFallback); !ok {
		t.Errorf("LLM = %T, want *resilience.LLMFallback", ps.LLM)
	}
	if _, ok := ps.Embeddings.(*resilience.EmbeddingsFallback); !ok {
		t.Errorf("Embeddings = %T, want *resilience.EmbeddingsFallback", ps.Embeddings)
	}
}

func TestBuildProviders_Unregistered(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Providers = config.ProvidersConfig{
		LLM:        config.ProviderEntry{Name: "nope"},
		Embeddings: config.ProviderEntry{Name: "primary"},
	}
	_, err := app.BuildProviders(cfg, mockRegistry())
	if !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("err = %v, want ErrProviderNotRegistered", err)
	}
}
