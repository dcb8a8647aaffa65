package enrich

import "time"

// DefaultSystemPrompt is the instruction sent with every summarize call.
const DefaultSystemPrompt = "You analyze social graph data. Summarize this user's personality, interests, and tone. " +
	"Return valid JSON: { summary, tags: string[], style }."

// Config tunes the enrichment client. The zero value is usable; zero fields
// take the defaults documented on each field.
type Config struct {
	// SystemPrompt overrides [DefaultSystemPrompt].
	SystemPrompt string

	// Temperature for the summarize call. Default 0.7.
	Temperature float64

	// MaxTokens caps the summarize reply. Zero leaves the provider default.
	MaxTokens int

	// MaxAttempts is the total number of tries per call for transient
	// failures. Default 3.
	MaxAttempts int

	// RetryBaseDelay is the backoff before the second attempt; it doubles
	// after each further failure. Default 500ms.
	RetryBaseDelay time.Duration

	// RetryMaxDelay caps the backoff. Default 8s.
	RetryMaxDelay time.Duration

	// CallTimeout bounds each individual attempt. Default 30s.
	CallTimeout time.Duration

	// Dimensions, when positive, is the required embedding length.
	Dimensions int
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Temperature == 0 {
		c.Temperature = 0.7
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = 500 * time.Millisecond
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = 8 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}
