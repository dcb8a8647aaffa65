package provider

import (
	"errors"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAIConn holds the connection settings shared by the providers built on
// the OpenAI SDK. BaseURL may point at any OpenAI-compatible server.
type OpenAIConn struct {
	APIKey       string
	BaseURL      string
	Organization string
	// Timeout bounds each HTTP request; zero leaves it to the caller's ctx.
	Timeout time.Duration
}

// Client builds an SDK client with SDK-level retries disabled; callers own
// the retry policy.
func (c OpenAIConn) Client() (oai.Client, error) {
	if c.APIKey == "" {
		return oai.Client{}, errors.New("api key must not be empty")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(c.APIKey),
		option.WithMaxRetries(0),
	}
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	if c.Organization != "" {
		opts = append(opts, option.WithOrganization(c.Organization))
	}
	if c.Timeout > 0 {
		opts = append(opts, option.WithHTTPClient(&http.Client{Timeout: c.Timeout}))
	}
	return oai.NewClient(opts...), nil
}
