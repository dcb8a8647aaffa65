// Package profilestore defines the persistence contract for enriched
// social-graph profiles.
//
// A Store keeps exactly one record per fid. [Store.Upsert] replaces the
// enrichment payload of an existing record in place and keeps its original
// CreatedAt, so re-ingesting a user is idempotent.
//
// Backends live in sub-packages: postgres (pgx + pgvector), badger (embedded
// key-value store), and mock (in-memory test double).
package profilestore

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Profile is the stored, enriched view of one social-graph user.
type Profile struct {
	FID         int64     `json:"fid"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Bio         string    `json:"bio"`
	Summary     string    `json:"summary"`
	Tags        []string  `json:"tags"`
	Style       string    `json:"style"`
	Embedding   []float32 `json:"embedding,omitempty"`

	// IngestID identifies the ingestion run that last wrote the record.
	IngestID uuid.UUID `json:"ingest_id"`

	// CreatedAt is set on first insert and never changed by later upserts.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt is the time of the last upsert.
	UpdatedAt time.Time `json:"updated_at"`
}

// Match is a single similarity-search hit.
type Match struct {
	Profile Profile

	// Distance is the cosine distance to the query vector (0 = identical).
	Distance float64
}

// Store persists enriched profiles keyed on fid.
//
// Implementations must be safe for concurrent use. All errors returned by a
// Store are *Error values (possibly wrapped).
type Store interface {
	// Upsert inserts p or replaces the existing record with the same FID.
	// On replace, CreatedAt keeps its stored value.
	Upsert(ctx context.Context, p Profile) error

	// Get returns the record for fid. A missing record yields an *Error with
	// ReasonNotFound that also matches ErrNotFound.
	Get(ctx context.Context, fid int64) (*Profile, error)

	// Search returns up to k records nearest to embedding by cosine distance,
	// closest first. excludeFID (when > 0) is left out of the results.
	Search(ctx context.Context, embedding []float32, k int, excludeFID int64) ([]Match, error)

	// Ping checks that the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend's resources.
	Close() error
}

// Validate checks the invariants every backend enforces before writing:
// a positive fid and, when dims > 0, an embedding of exactly dims values.
func Validate(p Profile, dims int) error {
	if p.FID <= 0 {
		return &Error{Op: "upsert", Reason: ReasonConstraint, FID: p.FID, Err: errInvalidFID}
	}
	if len(p.Embedding) == 0 {
		return &Error{Op: "upsert", Reason: ReasonSerialization, FID: p.FID, Err: errEmptyEmbedding}
	}
	if dims > 0 && len(p.Embedding) != dims {
		return &Error{
			Op:     "upsert",
			Reason: ReasonSerialization,
			FID:    p.FID,
			Err:    &DimensionError{Got: len(p.Embedding), Want: dims},
		}
	}
	return nil
}
