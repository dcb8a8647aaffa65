// Package observe ties together the service's OpenTelemetry metrics, tracing,
// context-scoped logging and the HTTP middleware that starts a trace per
// request.
//
// Metrics go through the OTel API and are exported in Prometheus format by
// [InitProvider]. Production code uses [DefaultMetrics]; tests build their own
// with [NewMetrics] over a manual reader.
package observe

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/MrWong99/frameingest"

// Metrics holds the service's instruments. Safe for concurrent use.
type Metrics struct {
	// IngestDuration is the end-to-end latency of one ingestion, by "outcome".
	IngestDuration metric.Float64Histogram
	// ComposeDuration is the latency of building the profile text.
	ComposeDuration metric.Float64Histogram
	// SummarizeDuration and EmbedDuration include retries.
	SummarizeDuration metric.Float64Histogram
	EmbedDuration     metric.Float64Histogram
	// StoreDuration is the latency of the profile upsert.
	StoreDuration metric.Float64Histogram
	// HTTPRequestDuration is labelled by method, route pattern ("path") and
	// status class ("status").
	HTTPRequestDuration metric.Float64Histogram

	// ProviderRequests counts backend calls by provider, kind and status.
	ProviderRequests metric.Int64Counter
	// ProviderErrors counts failed backend calls by provider and kind.
	ProviderErrors metric.Int64Counter
	// LLMTokens counts tokens reported by the LLM, by provider and "type"
	// (prompt or completion).
	LLMTokens metric.Int64Counter
	// IngestOutcomes counts finished ingestions by "outcome" ("ok" or an
	// error kind).
	IngestOutcomes metric.Int64Counter
	// Retries counts retried enrichment attempts by "op".
	Retries metric.Int64Counter

	// InFlightIngests is the number of ingestions currently running.
	InFlightIngests metric.Int64UpDownCounter
}

// latencyBuckets are sized for remote model calls, which routinely take
// several seconds.
var latencyBuckets = []float64{
	0.005, 0.025, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60,
}

// NewMetrics creates every instrument on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.IngestDuration, "frameingest.ingest.duration", "End-to-end latency of one profile ingestion."},
		{&met.ComposeDuration, "frameingest.compose.duration", "Latency of composing the profile text."},
		{&met.SummarizeDuration, "frameingest.summarize.duration", "Latency of the summarize call including retries."},
		{&met.EmbedDuration, "frameingest.embed.duration", "Latency of the embedding call including retries."},
		{&met.StoreDuration, "frameingest.store.duration", "Latency of the profile upsert."},
		{&met.HTTPRequestDuration, "frameingest.http.request.duration", "HTTP request latency by method, route and status class."},
	}
	for _, h := range histograms {
		var err error
		*h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		)
		if err != nil {
			return nil, fmt.Errorf("observe: histogram %s: %w", h.name, err)
		}
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "frameingest.provider.requests", "Backend calls by provider, kind and status."},
		{&met.ProviderErrors, "frameingest.provider.errors", "Failed backend calls by provider and kind."},
		{&met.LLMTokens, "frameingest.llm.tokens", "Tokens reported by the LLM by provider and type."},
		{&met.IngestOutcomes, "frameingest.ingest.outcomes", "Finished ingestions by outcome."},
		{&met.Retries, "frameingest.enrich.retries", "Retried enrichment attempts by operation."},
	}
	for _, c := range counters {
		var err error
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, fmt.Errorf("observe: counter %s: %w", c.name, err)
		}
	}

	var err error
	if met.InFlightIngests, err = m.Int64UpDownCounter("frameingest.ingest.in_flight",
		metric.WithDescription("Ingestions currently running."),
	); err != nil {
		return nil, fmt.Errorf("observe: in-flight gauge: %w", err)
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the process-wide [Metrics] on the global meter
// provider, creating it on first use.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic(err)
		}
	})
	return defaultMetrics
}

// RecordProviderRequest counts one backend call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
		attribute.String("status", status),
	))
}

// RecordProviderError counts one failed backend call.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("kind", kind),
	))
}

// RecordTokens adds the token usage of one completion. Backends that report
// no usage record nothing.
func (m *Metrics) RecordTokens(ctx context.Context, provider string, prompt, completion int) {
	if prompt > 0 {
		m.LLMTokens.Add(ctx, int64(prompt), metric.WithAttributes(
			attribute.String("provider", provider), attribute.String("type", "prompt")))
	}
	if completion > 0 {
		m.LLMTokens.Add(ctx, int64(completion), metric.WithAttributes(
			attribute.String("provider", provider), attribute.String("type", "completion")))
	}
}

// RecordIngestOutcome counts one finished ingestion.
func (m *Metrics) RecordIngestOutcome(ctx context.Context, outcome string) {
	m.IngestOutcomes.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordRetry counts one retried enrichment attempt.
func (m *Metrics) RecordRetry(ctx context.Context, op string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}
