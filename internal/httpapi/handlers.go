package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/MrWong99/frameingest/internal/ingest"
	"github.com/MrWong99/frameingest/internal/observe"
	"github.com/MrWong99/frameingest/internal/profile"
	"github.com/MrWong99/frameingest/pkg/profilestore"
)

// ingestResponse is the success body of POST /api/ingest-user.
type ingestResponse struct {
	Success bool     `json:"success"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
	Style   string   `json:"style"`
}

// errorResponse is the body of every failed request.
type errorResponse struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	Kind      string `json:"kind,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// userResponse is a stored profile without its embedding.
type userResponse struct {
	FID         int64     `json:"fid"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio"`
	Summary     string    `json:"summary"`
	Tags        []string  `json:"tags"`
	Style       string    `json:"style"`
	IngestID    uuid.UUID `json:"ingestId"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	req, err := profile.DecodeRequest(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		s.metrics.RecordIngestOutcome(ctx, string(ingest.KindValidation))
		s.writeIngestError(ctx, w, &ingest.Error{Kind: ingest.KindValidation, Err: err})
		return
	}

	res, err := s.ingester.Ingest(ctx, req)
	if err != nil {
		s.writeIngestError(ctx, w, err)
		return
	}

	w.Header().Set("X-Ingest-ID", res.IngestID.String())
	writeJSON(w, http.StatusOK, ingestResponse{
		Success: true,
		Summary: res.Summary,
		Tags:    res.Tags,
		Style:   res.Style,
	})
}

// writeIngestError maps err onto a status code:
//
//	validation            400
//	enrichment_parse      502
//	enrichment_transient  503 + Retry-After
//	enrichment_permanent  502
//	store                 500
//	deadline exceeded     504
func (s *Server) writeIngestError(ctx context.Context, w http.ResponseWriter, err error) {
	kind := ingest.KindOf(err)
	log := observe.Logger(ctx).With("kind", string(kind))

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.Warn("ingest timed out", "err", err)
		writeJSON(w, http.StatusGatewayTimeout, errorResponse{Error: "request timed out", Kind: string(kind)})
		return
	}

	resp := errorResponse{Error: err.Error(), Kind: string(kind)}
	status := http.StatusInternalServerError
	switch kind {
	case ingest.KindValidation:
		status = http.StatusBadRequest
	case ingest.KindEnrichmentParse, ingest.KindEnrichmentPermanent:
		status = http.StatusBadGateway
	case ingest.KindEnrichmentTransient:
		status = http.StatusServiceUnavailable
		resp.Retryable = true
		w.Header().Set("Retry-After", strconv.Itoa(int(s.retryAfter.Round(time.Second)/time.Second)))
	}

	if status >= http.StatusInternalServerError {
		log.Error("ingest failed", "status", status, "err", err)
	} else {
		log.Info("ingest rejected", "status", status, "err", err)
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	fid, err := strconv.ParseInt(chi.URLParam(r, "fid"), 10, 64)
	if err != nil || fid <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "fid must be a positive integer", Kind: string(ingest.KindValidation)})
		return
	}

	p, err := s.reader.Get(r.Context(), fid)
	switch {
	case errors.Is(err, profilestore.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "profile not found"})
		return
	case err != nil:
		observe.Logger(r.Context()).Error("loading profile failed", "fid", fid, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error(), Kind: string(ingest.KindStore)})
		return
	}

	writeJSON(w, http.StatusOK, userResponse{
		FID:         p.FID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Summary:     p.Summary,
		Tags:        p.Tags,
		Style:       p.Style,
		IngestID:    p.IngestID,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
