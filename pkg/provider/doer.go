package provider

import (
	"io"
	"net/http"
	"strings"
)

// StatusDoer is an HTTP doer that turns non-2xx answers into *StatusError
// before SDKs such as langchaingo flatten them into untyped messages, so the
// status code stays reachable through errors.As.
type StatusDoer struct {
	// Provider names the backend in returned errors.
	Provider string

	// Client performs the requests. Nil means http.DefaultClient.
	Client *http.Client
}

// Do implements the doer interface expected by langchaingo clients.
func (d StatusDoer) Do(req *http.Request) (*http.Response, error) {
	c := d.Client
	if c == nil {
		c = http.DefaultClient
	}
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return nil, &StatusError{
		Provider:   d.Provider,
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(excerpt)),
	}
}
