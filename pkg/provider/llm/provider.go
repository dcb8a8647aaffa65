// Package llm is the completion interface the enrichment client talks to.
// Backends live in subpackages (openai, anyllm, langchain) and a scripted
// double in mock.
package llm

import "context"

// Message is one turn of the prompt. Role is "system", "user" or "assistant".
type Message struct {
	Role    string
	Content string
}

// CompletionRequest is one non-streaming completion call.
type CompletionRequest struct {
	// SystemPrompt goes first. Backends without a dedicated field send it as
	// a "system" message.
	SystemPrompt string
	Messages     []Message

	// Temperature in [0, 2]; zero keeps the backend default.
	Temperature float64
	// MaxTokens caps the reply; zero keeps the backend default.
	MaxTokens int

	// JSONMode asks for a bare JSON object. Backends that cannot honour it
	// ignore the flag, so replies are validated either way.
	JSONMode bool
}

// Usage is the token accounting a backend reports, zero when it reports none.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionResponse is the full reply text plus usage.
type CompletionResponse struct {
	Content string
	Usage   Usage
}

// ModelCapabilities are static limits of the configured model.
type ModelCapabilities struct {
	ContextWindow    int
	MaxOutputTokens  int
	SupportsJSONMode bool
}

// Provider is an LLM backend. Implementations are safe for concurrent use,
// return promptly when ctx is done and keep the backend's HTTP status
// reachable through errors.As so failures can be classified.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	Capabilities() ModelCapabilities
}
