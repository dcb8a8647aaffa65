package enrich

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/MrWong99/frameingest/internal/resilience"
	"github.com/MrWong99/frameingest/pkg/provider"
)

// maxReplyExcerpt bounds how much of an unparseable reply a ParseError keeps.
const maxReplyExcerpt = 512

// ParseError reports a model reply that did not match the expected
// {summary, tags, style} shape.
type ParseError struct {
	// Reply is the (possibly truncated) raw reply.
	Reply string

	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("enrich: unparseable summary reply: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func newParseError(reply string, err error) *ParseError {
	if len(reply) > maxReplyExcerpt {
		reply = reply[:maxReplyExcerpt] + "…"
	}
	return &ParseError{Reply: reply, Err: err}
}

// ServiceError reports a failed call to the LLM or embeddings backend.
type ServiceError struct {
	// Op is "summarize" or "embed".
	Op string

	// Transient marks failures worth retrying: timeouts, rate limits,
	// 5xx answers and transport errors.
	Transient bool

	// StatusCode is the backend's HTTP status when one was returned.
	StatusCode int

	Err error
}

func (e *ServiceError) Error() string {
	kind := "permanent"
	if e.Transient {
		kind = "transient"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("enrich: %s failed (%s, status %d): %v", e.Op, kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("enrich: %s failed (%s): %v", e.Op, kind, e.Err)
}

func (e *ServiceError) Unwrap() error { return e.Err }

// IsTransient reports whether err contains a transient *ServiceError.
func IsTransient(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Transient
}

// Classify converts a provider error into a *ServiceError for op. An err that
// already contains a *ServiceError is returned as that error.
//
// Rules, first match wins:
//   - HTTP 408, 409, 429 and 5xx are transient; other statuses are permanent.
//   - context.Canceled is permanent (the caller went away).
//   - context.DeadlineExceeded, an open circuit breaker, an exhausted
//     fallback group and network/transport errors are transient.
//   - Everything else is permanent.
func Classify(op string, err error) *ServiceError {
	if err == nil {
		return nil
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se
	}

	out := &ServiceError{Op: op, Err: err}
	if code, ok := provider.StatusCode(err); ok {
		out.StatusCode = code
		out.Transient = transientStatus(code)
		return out
	}

	var (
		netErr net.Error
		urlErr *url.Error
	)
	switch {
	case errors.Is(err, context.Canceled):
		out.Transient = false
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, resilience.ErrCircuitOpen),
		errors.Is(err, resilience.ErrAllFailed),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		out.Transient = true
	}
	return out
}

func transientStatus(code int) bool {
	switch {
	case code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooManyRequests,
		code >= 500:
		return true
	default:
		return false
	}
}
