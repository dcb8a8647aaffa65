// Package provider holds helpers shared by the concrete provider packages
// under pkg/provider.
package provider

import (
	"errors"
	"fmt"

	ollama "github.com/ollama/ollama/api"
	oai "github.com/openai/openai-go"
)

// StatusError is returned by HTTP-based providers that talk to their backend
// without an SDK when the backend answers with a non-success status.
type StatusError struct {
	// Provider names the backend, e.g. "ollama".
	Provider string

	// StatusCode is the HTTP status code of the response.
	StatusCode int

	// Body is a bounded excerpt of the response body.
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Provider, e.StatusCode, e.Body)
}

// StatusCode extracts the HTTP status code carried by err, if any. It
// understands *StatusError and the API error types of the OpenAI and Ollama
// clients.
func StatusCode(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode, true
	}
	var apiErr *oai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
		return apiErr.StatusCode, true
	}
	// The Ollama client returns its error by value.
	var olErr ollama.StatusError
	if errors.As(err, &olErr) && olErr.StatusCode != 0 {
		return olErr.StatusCode, true
	}
	return 0, false
}
