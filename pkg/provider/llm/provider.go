// Package llm defines the Provider interface for reasoning-model backends.
//
// A reasoning provider wraps a remote or local model API (e.g., OpenAI GPT-4o,
// Google Gemini, or anything reachable through any-llm-go) and exposes a
// uniform request/response interface so the interview engine can generate
// interviewer turns, rubric scores, and report narratives without coupling to
// any specific SDK.
//
// Providers are deliberately non-streaming: every call site in the engine is a
// bounded request/response exchange guarded by a context deadline, so the
// retry-and-degrade policy lives in one place (internal/resilience) instead of
// being scattered across stream callbacks.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import "context"

// Usage holds token accounting information returned by the model backend.
// Counts are in the model's native token unit and may differ between providers
// for the same textual content.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages and
	// system prompt.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a response.
// Callers should treat a zero-value request as invalid; at minimum Messages
// must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation history. Providers that lack a dedicated system field
	// should prepend it as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation history. The last message is
	// typically from the "user" role and drives the response.
	Messages []Message

	// Temperature controls output randomness in the range [0.0, 2.0].
	// Zero means use the provider default.
	Temperature float64

	// MaxTokens caps the number of completion tokens the model may generate.
	// Zero means use the provider default.
	MaxTokens int

	// ForceJSON asks the provider to constrain the output to a single JSON
	// object (used for rubric scoring). Providers without native JSON-mode
	// support may ignore this field; callers must still validate the output.
	ForceJSON bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the model's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// ModelCapabilities describes static metadata about a provider's model.
type ModelCapabilities struct {
	// ContextWindow is the maximum token count for input + output.
	ContextWindow int

	// MaxOutputTokens is the maximum tokens the model can generate in one call.
	MaxOutputTokens int

	// SupportsJSONOutput indicates native JSON-mode support (see
	// [CompletionRequest.ForceJSON]).
	SupportsJSONOutput bool
}

// Provider is the abstraction over any reasoning-model backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails or ctx is cancelled/expired
	// before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata describing the underlying model.
	// The result is assumed constant for the lifetime of the Provider.
	Capabilities() ModelCapabilities
}
