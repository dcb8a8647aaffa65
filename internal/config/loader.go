package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"regexp"
	"slices"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm":        {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile", "langchain"},
	"embeddings": {"openai", "ollama", "langchain"},
}

// envRef matches ${NAME} references. Bare $NAME is left alone so that
// prompts may contain dollar signs.
var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env") into
// the process environment. Variables already set are not overwritten. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %q: %w", p, err)
		}
	}
	return nil
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with defaults applied.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader expands ${VAR} references, decodes a YAML config from r,
// applies defaults and validates the result.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader(ExpandEnv(raw)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ExpandEnv replaces every ${NAME} in data with the value of the environment
// variable NAME. Unset variables expand to the empty string.
func ExpandEnv(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		name := envRef.FindSubmatch(m)[1]
		return []byte(os.Getenv(string(name)))
	})
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.RequestTimeout < 0 {
		errs = append(errs, errors.New("server.request_timeout must not be negative"))
	}
	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("server.max_body_bytes must not be negative"))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.Embeddings.Name == "" {
		errs = append(errs, errors.New("providers.embeddings.name is required"))
	}
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("embeddings", cfg.Providers.Embeddings.Name)
	for i, fb := range cfg.Providers.LLMFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.llm_fallbacks[%d].name is required", i))
		}
		validateProviderName("llm", fb.Name)
	}
	for i, fb := range cfg.Providers.EmbeddingsFallbacks {
		if fb.Name == "" {
			errs = append(errs, fmt.Errorf("providers.embeddings_fallbacks[%d].name is required", i))
		}
		validateProviderName("embeddings", fb.Name)
	}

	// Enrichment
	e := cfg.Enrichment
	if e.Temperature < 0 || e.Temperature > 2 {
		errs = append(errs, fmt.Errorf("enrichment.temperature %.2f is out of range [0, 2]", e.Temperature))
	}
	if e.MaxAttempts < 0 {
		errs = append(errs, errors.New("enrichment.max_attempts must not be negative"))
	}
	if e.MaxTokens < 0 {
		errs = append(errs, errors.New("enrichment.max_tokens must not be negative"))
	}
	if e.RetryBaseDelay < 0 || e.RetryMaxDelay < 0 || e.CallTimeout < 0 {
		errs = append(errs, errors.New("enrichment durations must not be negative"))
	}
	if e.RetryMaxDelay > 0 && e.RetryBaseDelay > e.RetryMaxDelay {
		errs = append(errs, fmt.Errorf("enrichment.retry_base_delay %s exceeds retry_max_delay %s", e.RetryBaseDelay, e.RetryMaxDelay))
	}
	if e.CallTimeout > 0 && cfg.Server.RequestTimeout > 0 && e.CallTimeout > cfg.Server.RequestTimeout {
		slog.Warn("enrichment.call_timeout exceeds server.request_timeout; requests will time out before a single call does",
			"call_timeout", e.CallTimeout, "request_timeout", cfg.Server.RequestTimeout)
	}

	// Store
	if cfg.Store.Driver != "" && !cfg.Store.Driver.IsValid() {
		errs = append(errs, fmt.Errorf("store.driver %q is invalid; valid values: postgres, badger", cfg.Store.Driver))
	}
	if cfg.Store.Driver == StorePostgres && cfg.Store.PostgresDSN == "" {
		errs = append(errs, errors.New("store.postgres_dsn is required when store.driver is postgres"))
	}
	if cfg.Store.Driver == StoreBadger && cfg.Store.BadgerPath == "" {
		slog.Warn("store.badger_path is empty; profiles are kept in memory and lost on restart")
	}
	if cfg.Store.EmbeddingDimensions < 0 {
		errs = append(errs, errors.New("store.embedding_dimensions must be positive"))
	}

	// Telemetry
	if r := cfg.Telemetry.TraceSampleRatio; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("telemetry.trace_sample_ratio %.2f is out of range [0, 1]", r))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok || slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
