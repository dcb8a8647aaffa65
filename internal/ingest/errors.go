package ingest

import (
	"errors"
	"fmt"

	"github.com/MrWong99/frameingest/internal/enrich"
	"github.com/MrWong99/frameingest/internal/profile"
	"github.com/MrWong99/frameingest/pkg/profilestore"
)

// Kind identifies the pipeline stage that failed.
type Kind string

const (
	KindValidation          Kind = "validation"
	KindEnrichmentParse     Kind = "enrichment_parse"
	KindEnrichmentTransient Kind = "enrichment_transient"
	KindEnrichmentPermanent Kind = "enrichment_permanent"
	KindStore               Kind = "store"

	// KindUnknown is returned by KindOf for errors that did not come out of
	// a Pipeline.
	KindUnknown Kind = "unknown"
)

// Error wraps the failure of one ingestion with the stage it came from.
type Error struct {
	Kind Kind
	FID  int64
	Err  error
}

func (e *Error) Error() string {
	if e.FID > 0 {
		return fmt.Sprintf("ingest fid %d: %s: %v", e.FID, e.Kind, e.Err)
	}
	return fmt.Sprintf("ingest: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of the first *Error in err's chain. Errors that
// were never wrapped are classified by their concrete type.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var ie *Error
	if errors.As(err, &ie) {
		return ie.Kind
	}
	return classify(err)
}

func classify(err error) Kind {
	var (
		pe *enrich.ParseError
		se *enrich.ServiceError
		st *profilestore.Error
	)
	switch {
	case profile.IsValidation(err):
		return KindValidation
	case errors.As(err, &pe):
		return KindEnrichmentParse
	case errors.As(err, &se):
		if se.Transient {
			return KindEnrichmentTransient
		}
		return KindEnrichmentPermanent
	case errors.As(err, &st):
		return KindStore
	default:
		return KindUnknown
	}
}

func wrap(fid int64, err error) *Error {
	var ie *Error
	if errors.As(err, &ie) {
		return ie
	}
	return &Error{Kind: classify(err), FID: fid, Err: err}
}
