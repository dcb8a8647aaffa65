package config

import "fmt"

// ConfigDiff describes what changed between two configs.
//
// LogLevel and Enrichment changes are applied while running. Changes to
// providers, store or listen address only take effect after a restart and are
// reported in RestartRequired.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	EnrichmentChanged bool
	NewEnrichment     EnrichmentConfig

	// RestartRequired lists the top-level keys whose changes are ignored
	// until restart, e.g. "providers" or "store".
	RestartRequired []string
}

// Empty reports whether d contains no changes at all.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.EnrichmentChanged && len(d.RestartRequired) == 0
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Enrichment != new.Enrichment {
		d.EnrichmentChanged = true
		d.NewEnrichment = new.Enrichment
	}

	if old.Server.ListenAddr != new.Server.ListenAddr ||
		old.Server.RequestTimeout != new.Server.RequestTimeout ||
		old.Server.MaxBodyBytes != new.Server.MaxBodyBytes ||
		old.Server.RetryAfter != new.Server.RetryAfter ||
		!equalTLS(old.Server.TLS, new.Server.TLS) {
		d.RestartRequired = append(d.RestartRequired, "server")
	}
	if !equalProviders(old.Providers, new.Providers) {
		d.RestartRequired = append(d.RestartRequired, "providers")
	}
	if !equalStore(old.Store, new.Store) {
		d.RestartRequired = append(d.RestartRequired, "store")
	}
	if old.Telemetry != new.Telemetry {
		d.RestartRequired = append(d.RestartRequired, "telemetry")
	}
	return d
}

func equalTLS(a, b *TLSConfig) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func equalStore(a, b StoreConfig) bool {
	return a.Driver == b.Driver &&
		a.PostgresDSN == b.PostgresDSN &&
		a.BadgerPath == b.BadgerPath &&
		a.Table == b.Table &&
		a.EmbeddingDimensions == b.EmbeddingDimensions &&
		a.Migrate() == b.Migrate()
}

func equalProviders(a, b ProvidersConfig) bool {
	if !equalEntry(a.LLM, b.LLM) || !equalEntry(a.Embeddings, b.Embeddings) {
		return false
	}
	if len(a.LLMFallbacks) != len(b.LLMFallbacks) || len(a.EmbeddingsFallbacks) != len(b.EmbeddingsFallbacks) {
		return false
	}
	for i := range a.LLMFallbacks {
		if !equalEntry(a.LLMFallbacks[i], b.LLMFallbacks[i]) {
			return false
		}
	}
	for i := range a.EmbeddingsFallbacks {
		if !equalEntry(a.EmbeddingsFallbacks[i], b.EmbeddingsFallbacks[i]) {
			return false
		}
	}
	return true
}

// equalEntry compares the fixed fields of two entries. Options are compared
// by key set and formatted value, which is enough for YAML scalars.
func equalEntry(a, b ProviderEntry) bool {
	if a.Name != b.Name || a.APIKey != b.APIKey || a.BaseURL != b.BaseURL || a.Model != b.Model {
		return false
	}
	if len(a.Options) != len(b.Options) {
		return false
	}
	for k, av := range a.Options {
		bv, ok := b.Options[k]
		if !ok || fmtValue(av) != fmtValue(bv) {
			return false
		}
	}
	return true
}

func fmtValue(v any) string { return fmt.Sprintf("%#v", v) }
