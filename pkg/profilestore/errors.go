package profilestore

import (
	"errors"
	"fmt"
)

// Reason classifies a store failure.
type Reason string

const (
	// ReasonConstraint means the record violated a schema constraint.
	ReasonConstraint Reason = "constraint"

	// ReasonConnectivity means the backend could not be reached or the
	// connection failed mid-operation.
	ReasonConnectivity Reason = "connectivity"

	// ReasonSerialization means a value could not be encoded for storage,
	// e.g. an embedding of the wrong length.
	ReasonSerialization Reason = "serialization"

	// ReasonNotFound means no record exists for the requested fid.
	ReasonNotFound Reason = "not_found"

	// ReasonUnknown covers everything else.
	ReasonUnknown Reason = "unknown"
)

// ErrNotFound matches (via errors.Is) every *Error with ReasonNotFound.
var ErrNotFound = errors.New("profile not found")

var (
	errInvalidFID     = errors.New("fid must be a positive integer")
	errEmptyEmbedding = errors.New("embedding must not be empty")
)

// Error is the single error type returned by Store implementations.
type Error struct {
	// Op is the store operation: "upsert", "get", "search", "ping".
	Op string

	Reason Reason

	// FID is the affected profile, zero when not applicable.
	FID int64

	Err error
}

func (e *Error) Error() string {
	if e.FID != 0 {
		return fmt.Sprintf("profilestore: %s fid %d: %s: %v", e.Op, e.FID, e.Reason, e.Err)
	}
	return fmt.Sprintf("profilestore: %s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) match not-found errors from any backend.
func (e *Error) Is(target error) bool {
	return target == ErrNotFound && e.Reason == ReasonNotFound
}

// DimensionError reports an embedding whose length differs from the
// configured column size.
type DimensionError struct {
	Got, Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding has %d dimensions, store expects %d", e.Got, e.Want)
}

// ReasonOf returns the Reason of the first *Error in err's chain, or
// ReasonUnknown.
func ReasonOf(err error) Reason {
	var se *Error
	if errors.As(err, &se) {
		return se.Reason
	}
	return ReasonUnknown
}
