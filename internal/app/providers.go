package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/frameingest/internal/config"
	"github.com/MrWong99/frameingest/internal/resilience"
	"github.com/MrWong99/frameingest/pkg/profilestore"
	badgerstore "github.com/MrWong99/frameingest/pkg/profilestore/badger"
	"github.com/MrWong99/frameingest/pkg/profilestore/postgres"
	"github.com/MrWong99/frameingest/pkg/provider/embeddings"
	lcembed "github.com/MrWong99/frameingest/pkg/provider/embeddings/langchain"
	ollamaembed "github.com/MrWong99/frameingest/pkg/provider/embeddings/ollama"
	oaembed "github.com/MrWong99/frameingest/pkg/provider/embeddings/openai"
	"github.com/MrWong99/frameingest/pkg/provider/llm"
	"github.com/MrWong99/frameingest/pkg/provider/llm/anyllm"
	lcllm "github.com/MrWong99/frameingest/pkg/provider/llm/langchain"
	oallm "github.com/MrWong99/frameingest/pkg/provider/llm/openai"
)

// RegisterBuiltinProviders wires all built-in provider factories into reg.
// Each factory receives a config.ProviderEntry and constructs the provider
// from the real implementation packages.
func RegisterBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────

	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oallm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oallm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oallm.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oallm.WithTimeout(d))
		}
		return oallm.New(entry.APIKey, entry.Model, opts...)
	})

	// Every other any-llm vendor shares one construction. OpenAI keeps the
	// native client above.
	for _, vendor := range anyllm.Vendors() {
		if vendor == "openai" {
			continue
		}
		reg.RegisterLLM(vendor, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}

	reg.RegisterLLM("langchain", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []lcllm.Option
		if entry.APIKey != "" {
			opts = append(opts, lcllm.WithToken(entry.APIKey))
		}
		if n := optInt(entry.Options, "context_window"); n > 0 {
			opts = append(opts, lcllm.WithContextWindow(n))
		}
		return lcllm.New(entry.BaseURL, entry.Model, opts...)
	})

	// ── Embeddings ────────────────────────────────────────────────────────────

	reg.RegisterEmbeddings("openai", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []oaembed.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaembed.WithOrganization(org))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaembed.WithTimeout(d))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, oaembed.WithDimensions(n))
		}
		return oaembed.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("ollama", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []ollamaembed.Option
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, ollamaembed.WithTimeout(d))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, ollamaembed.WithDimensions(n))
		}
		return ollamaembed.New(entry.BaseURL, entry.Model, opts...)
	})

	reg.RegisterEmbeddings("langchain", func(entry config.ProviderEntry) (embeddings.Provider, error) {
		var opts []lcembed.Option
		if entry.APIKey != "" {
			opts = append(opts, lcembed.WithToken(entry.APIKey))
		}
		if n := optInt(entry.Options, "dimensions"); n > 0 {
			opts = append(opts, lcembed.WithDimensions(n))
		}
		return lcembed.New(entry.BaseURL, entry.Model, opts...)
	})

	for _, kind := range []string{"llm", "embeddings"} {
		for _, name := range reg.Names(kind) {
			slog.Debug("registered provider", "kind", kind, "name", name)
		}
	}
}

// BuildProviders instantiates the providers named in cfg using the registry.
// Configured fallbacks are wrapped around the primary with a circuit breaker
// per entry.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	pc := cfg.Providers
	ps := &Providers{LLMName: pc.LLM.Name, EmbeddingsName: pc.Embeddings.Name}

	primaryLLM, err := reg.CreateLLM(pc.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", pc.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", pc.LLM.Name, "model", pc.LLM.Model)
	ps.LLM = primaryLLM

	if len(pc.LLMFallbacks) > 0 {
		fb := resilience.NewLLMFallback(primaryLLM, pc.LLM.Name, fallbackConfig())
		for _, entry := range pc.LLMFallbacks {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("create llm fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, p)
			slog.Info("fallback provider added", "kind", "llm", "name", entry.Name)
		}
		ps.LLM = fb
	}

	primaryEmb, err := reg.CreateEmbeddings(pc.Embeddings)
	if err != nil {
		return nil, fmt.Errorf("create embeddings provider %q: %w", pc.Embeddings.Name, err)
	}
	slog.Info("provider created", "kind", "embeddings", "name", pc.Embeddings.Name, "model", pc.Embeddings.Model)
	ps.Embeddings = primaryEmb

	if len(pc.EmbeddingsFallbacks) > 0 {
		fb := resilience.NewEmbeddingsFallback(primaryEmb, pc.Embeddings.Name, fallbackConfig())
		for _, entry := range pc.EmbeddingsFallbacks {
			p, err := reg.CreateEmbeddings(entry)
			if err != nil {
				return nil, fmt.Errorf("create embeddings fallback %q: %w", entry.Name, err)
			}
			fb.AddFallback(entry.Name, p)
			slog.Info("fallback provider added", "kind", "embeddings", "name", entry.Name)
		}
		ps.Embeddings = fb
	}

	if d := ps.Embeddings.Dimensions(); d > 0 && cfg.Store.EmbeddingDimensions > 0 && d != cfg.Store.EmbeddingDimensions {
		slog.Warn("embedding model dimensions differ from store",
			"model", ps.Embeddings.ModelID(), "model_dims", d, "store_dims", cfg.Store.EmbeddingDimensions)
	}
	return ps, nil
}

func fallbackConfig() resilience.FallbackConfig {
	return resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{
			OnStateChange: func(name string, from, to resilience.State) {
				slog.Warn("provider circuit breaker", "provider", name, "from", from.String(), "to", to.String())
			},
		},
	}
}

// OpenStore opens the profile store selected by sc.Driver.
func OpenStore(ctx context.Context, sc config.StoreConfig) (profilestore.Store, error) {
	switch sc.Driver {
	case config.StorePostgres:
		opts := []postgres.Option{postgres.WithTable(sc.Table)}
		if !sc.Migrate() {
			opts = append(opts, postgres.WithoutMigrate())
		}
		return postgres.NewStore(ctx, sc.PostgresDSN, sc.EmbeddingDimensions, opts...)
	case config.StoreBadger:
		return badgerstore.Open(sc.BadgerPath, sc.EmbeddingDimensions,
			badgerstore.WithLogger(slog.Default()))
	default:
		return nil, fmt.Errorf("unknown store driver %q", sc.Driver)
	}
}

// ── Options helpers ───────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map. Returns ""
// if the key is absent or not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer value. YAML decodes plain numbers as int.
func optInt(opts map[string]any, key string) int {
	switch v := opts[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// optDuration extracts a duration written as a string such as "20s".
func optDuration(opts map[string]any, key string) time.Duration {
	d, err := time.ParseDuration(optString(opts, key))
	if err != nil {
		return 0
	}
	return d
}
