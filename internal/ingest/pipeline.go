// Package ingest runs one profile through the enrichment pipeline:
// compose the text, summarize and embed it concurrently, then upsert the
// result into the profile store.
//
// A run either stores a complete record and returns a [Result], or returns an
// [*Error] and writes nothing.
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/frameingest/internal/enrich"
	"github.com/MrWong99/frameingest/internal/observe"
	"github.com/MrWong99/frameingest/internal/profile"
	"github.com/MrWong99/frameingest/pkg/profilestore"
)

// Enricher produces the summary and embedding for composed profile text.
// *enrich.Client satisfies it.
type Enricher interface {
	Enrich(ctx context.Context, text string) (enrich.Result, []float32, error)
}

// Result is what a successful ingestion reports back.
type Result struct {
	IngestID uuid.UUID `json:"-"`
	Summary  string    `json:"summary"`
	Tags     []string  `json:"tags"`
	Style    string    `json:"style"`
}

// Pipeline is safe for concurrent use.
type Pipeline struct {
	enricher Enricher
	store    profilestore.Store
	metrics  *observe.Metrics
	now      func() time.Time
	newID    func() uuid.UUID
}

// Option configures a [Pipeline].
type Option func(*Pipeline)

// WithMetrics records stage latencies and outcomes to m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithClock overrides the timestamp source for stored records.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// WithIDGenerator overrides how ingest ids are minted.
func WithIDGenerator(gen func() uuid.UUID) Option {
	return func(p *Pipeline) { p.newID = gen }
}

// NewPipeline creates a Pipeline. Both dependencies are required.
func NewPipeline(e Enricher, s profilestore.Store, opts ...Option) (*Pipeline, error) {
	if e == nil {
		return nil, errors.New("ingest: enricher is required")
	}
	if s == nil {
		return nil, errors.New("ingest: store is required")
	}
	p := &Pipeline{
		enricher: e,
		store:    s,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.New,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p, nil
}

// Ingest enriches req and stores the resulting profile, replacing any
// previous record with the same fid.
func (p *Pipeline) Ingest(ctx context.Context, req profile.Request) (res *Result, err error) {
	fid := req.Profile.FID
	ctx, span := observe.StartSpan(ctx, "ingest",
		trace.WithAttributes(attribute.Int64("frameingest.fid", fid)))
	defer span.End()

	start := time.Now()
	p.metrics.InFlightIngests.Add(ctx, 1)
	defer func() {
		p.metrics.InFlightIngests.Add(ctx, -1)
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
			span.SetStatus(codes.Error, err.Error())
		}
		p.metrics.IngestDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String("outcome", outcome)))
		p.metrics.RecordIngestOutcome(ctx, outcome)
	}()

	id := p.newID()
	ctx = observe.WithLogAttrs(ctx, slog.Int64("fid", fid), slog.String("ingest_id", id.String()))
	log := observe.Logger(ctx)

	if verr := req.Validate(); verr != nil {
		return nil, wrap(fid, verr)
	}

	text := p.compose(ctx, req)

	summary, vec, err := p.enricher.Enrich(ctx, text)
	if err != nil {
		log.Warn("enrichment failed", "err", err)
		return nil, wrap(fid, err)
	}

	now := p.now()
	rec := profilestore.Profile{
		FID:         fid,
		Username:    req.Profile.Username,
		DisplayName: req.Profile.DisplayName,
		Bio:         req.Profile.Bio,
		Summary:     summary.Summary,
		Tags:        summary.Tags,
		Style:       summary.Style,
		Embedding:   vec,
		IngestID:    id,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.upsert(ctx, rec); err != nil {
		log.Error("storing profile failed", "err", err)
		return nil, wrap(fid, err)
	}

	log.Info("profile ingested",
		"tags", len(rec.Tags),
		"duration", time.Since(start))
	return &Result{
		IngestID: rec.IngestID,
		Summary:  rec.Summary,
		Tags:     rec.Tags,
		Style:    rec.Style,
	}, nil
}

func (p *Pipeline) compose(ctx context.Context, req profile.Request) string {
	_, span := observe.StartSpan(ctx, "ingest.compose")
	defer span.End()
	start := time.Now()
	text := profile.Compose(req.Profile, req.Casts)
	p.metrics.ComposeDuration.Record(ctx, time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("frameingest.text_length", len(text)))
	return text
}

func (p *Pipeline) upsert(ctx context.Context, rec profilestore.Profile) error {
	ctx, span := observe.StartSpan(ctx, "ingest.store")
	defer span.End()
	start := time.Now()
	defer func() { p.metrics.StoreDuration.Record(ctx, time.Since(start).Seconds()) }()

	if err := p.store.Upsert(ctx, rec); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}
