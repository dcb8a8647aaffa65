package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/frameingest/internal/config"
	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
	"github.com/MrWong99/frameingest/pkg/provider/llm"
)

const validYAML = `
server:
  listen_addr: ":9090"
  log_level: debug
  request_timeout: 45s
  retry_after: 10s
providers:
  llm:
    name: openai
    api_key: sk-test
    model: gpt-4
  embeddings:
    name: openai
    api_key: sk-test
    model: text-embedding-3-small
  llm_fallbacks:
    - name: anthropic
      model: claude-sonnet-4
enrichment:
  temperature: 0.7
  max_attempts: 4
  retry_base_delay: 250ms
  retry_max_delay: 4s
  call_timeout: 20s
store:
  driver: postgres
  postgres_dsn: "postgres://localhost/frameingest"
  embedding_dimensions: 1536
telemetry:
  service_name: frameingest-test
`

func TestLoadFromReader_Valid(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Server.RequestTimeout != 45*time.Second || cfg.Server.RetryAfter != 10*time.Second {
		t.Errorf("server durations = %v / %v", cfg.Server.RequestTimeout, cfg.Server.RetryAfter)
	}
	if cfg.Providers.LLM.Model != "gpt-4" || cfg.Providers.Embeddings.Model != "text-embedding-3-small" {
		t.Errorf("providers = %+v", cfg.Providers)
	}
	if len(cfg.Providers.LLMFallbacks) != 1 || cfg.Providers.LLMFallbacks[0].Name != "anthropic" {
		t.Errorf("llm_fallbacks = %+v", cfg.Providers.LLMFallbacks)
	}
	e := cfg.Enrichment
	if e.Temperature != 0.7 || e.MaxAttempts != 4 || e.RetryBaseDelay != 250*time.Millisecond ||
		e.RetryMaxDelay != 4*time.Second || e.CallTimeout != 20*time.Second {
		t.Errorf("enrichment = %+v", e)
	}
	if cfg.Store.Driver != config.StorePostgres || cfg.Store.Table != config.DefaultTable || !cfg.Store.Migrate() {
		t.Errorf("store = %+v", cfg.Store)
	}
	if cfg.Telemetry.ServiceName != "frameingest-test" {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromReader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm: {name: openai}
  embeddings: {name: openai}
store:
  driver: badger
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.ListenAddr != config.DefaultListenAddr || cfg.Server.LogLevel != config.LogInfo ||
		cfg.Server.RequestTimeout != config.DefaultRequestTimeout {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Store.EmbeddingDimensions != config.DefaultEmbeddingDimensions {
		t.Errorf("embedding_dimensions = %d", cfg.Store.EmbeddingDimensions)
	}
	if cfg.Telemetry.ServiceName != config.DefaultServiceName {
		t.Errorf("service_name = %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm: {name: openai}
  embeddings: {name: openai}
  tts: {name: elevenlabs}
`))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadFromReader_ExpandsEnv(t *testing.T) {
	t.Setenv("FRAMEINGEST_TEST_KEY", "sk-from-env")
	t.Setenv("FRAMEINGEST_TEST_DSN", "postgres://db/profiles")

	cfg, err := config.LoadFromReader(strings.NewReader(`
providers:
  llm: {name: openai, api_key: "${FRAMEINGEST_TEST_KEY}"}
  embeddings: {name: openai, api_key: "${FRAMEINGEST_TEST_KEY}"}
enrichment:
  system_prompt: "costs $5 per ${FRAMEINGEST_TEST_UNSET}call"
store:
  postgres_dsn: ${FRAMEINGEST_TEST_DSN}
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Providers.LLM.APIKey != "sk-from-env" || cfg.Providers.Embeddings.APIKey != "sk-from-env" {
		t.Errorf("api keys not expanded: %q / %q", cfg.Providers.LLM.APIKey, cfg.Providers.Embeddings.APIKey)
	}
	if cfg.Store.PostgresDSN != "postgres://db/profiles" {
		t.Errorf("postgres_dsn = %q", cfg.Store.PostgresDSN)
	}
	if cfg.Enrichment.SystemPrompt != "costs $5 per call" {
		t.Errorf("system_prompt = %q", cfg.Enrichment.SystemPrompt)
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	if err := os.WriteFile(path, []byte("FRAMEINGEST_DOTENV_A=from-file\nFRAMEINGEST_DOTENV_B=file\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRAMEINGEST_DOTENV_B", "from-env")
	t.Cleanup(func() { os.Unsetenv("FRAMEINGEST_DOTENV_A") })

	if err := config.LoadDotEnv(path, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("FRAMEINGEST_DOTENV_A"); got != "from-file" {
		t.Errorf("A = %q, want from-file", got)
	}
	if got := os.Getenv("FRAMEINGEST_DOTENV_B"); got != "from-env" {
		t.Errorf("B = %q, existing variables must win", got)
	}
}

func TestLoad_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(validYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: err = %v, want os.ErrNotExist", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	t.Parallel()

	base := func() *config.Config {
		cfg := &config.Config{
			Providers: config.ProvidersConfig{
				LLM:        config.ProviderEntry{Name: "openai"},
				Embeddings: config.ProviderEntry{Name: "openai"},
			},
			Store: config.StoreConfig{Driver: config.StoreBadger},
		}
		config.ApplyDefaults(cfg)
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"log level", func(c *config.Config) { c.Server.LogLevel = "bananas" }, "server.log_level"},
		{"missing llm", func(c *config.Config) { c.Providers.LLM.Name = "" }, "providers.llm.name"},
		{"missing embeddings", func(c *config.Config) { c.Providers.Embeddings.Name = "" }, "providers.embeddings.name"},
		{"unnamed fallback", func(c *config.Config) {
			c.Providers.EmbeddingsFallbacks = []config.ProviderEntry{{Model: "x"}}
		}, "providers.embeddings_fallbacks[0].name"},
		{"temperature", func(c *config.Config) { c.Enrichment.Temperature = 3 }, "enrichment.temperature"},
		{"attempts", func(c *config.Config) { c.Enrichment.MaxAttempts = -1 }, "enrichment.max_attempts"},
		{"delays", func(c *config.Config) {
			c.Enrichment.RetryBaseDelay = 10 * time.Second
			c.Enrichment.RetryMaxDelay = time.Second
		}, "retry_base_delay"},
		{"driver", func(c *config.Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres dsn", func(c *config.Config) { c.Store.Driver = config.StorePostgres }, "store.postgres_dsn"},
		{"tls", func(c *config.Config) { c.Server.TLS = &config.TLSConfig{CertFile: "cert.pem"} }, "server.tls"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := config.Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want mention of %q", err, tc.want)
			}
		})
	}

	if err := config.Validate(base()); err != nil {
		t.Errorf("base config should be valid: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	t.Parallel()

	err := config.Validate(&config.Config{Server: config.ServerConfig{LogLevel: "loud"}})
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, want := range []string{"server.log_level", "providers.llm.name", "providers.embeddings.name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("joined error missing %q: %v", want, err)
		}
	}
}

func TestStoreConfig_Migrate(t *testing.T) {
	t.Parallel()

	off := false
	if !(config.StoreConfig{}).Migrate() {
		t.Error("auto_migrate should default to true")
	}
	if (config.StoreConfig{AutoMigrate: &off}).Migrate() {
		t.Error("auto_migrate: false should disable migration")
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

type stubLLM struct{}

func (stubLLM) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	return &llm.CompletionResponse{}, nil
}
func (stubLLM) Capabilities() llm.ModelCapabilities { return llm.ModelCapabilities{} }

type stubEmbeddings struct{}

func (stubEmbeddings) Embed(context.Context, string) ([]float32, error) { return nil, nil }
func (stubEmbeddings) Dimensions() int                                   { return 3 }
func (stubEmbeddings) ModelID() string                                   { return "stub" }

func TestRegistry_Unknown(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateEmbeddings err = %v, want ErrProviderNotRegistered", err)
	}
}

func TestRegistry_Registered(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	var gotEntry config.ProviderEntry
	reg.RegisterLLM("stub", func(e config.ProviderEntry) (llm.Provider, error) {
		gotEntry = e
		return stubLLM{}, nil
	})
	reg.RegisterEmbeddings("stub", func(config.ProviderEntry) (embeddings.Provider, error) {
		return stubEmbeddings{}, nil
	})
	reg.RegisterEmbeddings("another", func(config.ProviderEntry) (embeddings.Provider, error) {
		return nil, errors.New("factory failed")
	})

	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "stub", Model: "m"}); err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if gotEntry.Model != "m" {
		t.Errorf("factory got entry %+v", gotEntry)
	}
	if p, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "stub"}); err != nil || p.Dimensions() != 3 {
		t.Errorf("CreateEmbeddings = %v, %v", p, err)
	}
	if _, err := reg.CreateEmbeddings(config.ProviderEntry{Name: "another"}); err == nil || errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("factory error should be returned as-is, got %v", err)
	}

	if got := reg.Names("embeddings"); len(got) != 2 || got[0] != "another" || got[1] != "stub" {
		t.Errorf("Names(embeddings) = %v", got)
	}
	if got := reg.Names("tts"); len(got) != 0 {
		t.Errorf("Names(tts) = %v", got)
	}
}
