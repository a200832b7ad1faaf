// Package mock provides a mock implementation of the llm.Provider interface
// for testing.
package mock

import (
	"context"
	"sync"

	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
)

// Provider is a configurable mock reasoning provider. Set the exported fields
// to control behavior, then inspect the recorded calls after the test.
type Provider struct {
	mu sync.Mutex

	// CompleteResponse is returned by Complete when CompleteErr and
	// CompleteFunc are nil.
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, when non-nil, is returned by every Complete call.
	CompleteErr error

	// CompleteFunc, when non-nil, overrides CompleteResponse/CompleteErr and
	// is invoked for each Complete call. The attempt number (1-based) counts
	// all prior calls on this mock, which lets tests script per-call behavior
	// such as fail-then-succeed.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest, attempt int) (*llm.CompletionResponse, error)

	// Caps is returned by Capabilities.
	Caps llm.ModelCapabilities

	// CompleteCalls records every request passed to Complete.
	CompleteCalls []llm.CompletionRequest
}

// Compile-time interface assertion.
var _ llm.Provider = (*Provider)(nil)

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, req)
	attempt := len(p.CompleteCalls)
	fn := p.CompleteFunc
	resp, err := p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if fn != nil {
		return fn(ctx, req, attempt)
	}
	if err != nil {
		return nil, err
	}
	if resp != nil {
		return resp, nil
	}
	return &llm.CompletionResponse{Content: "ok"}, nil
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() llm.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Caps == (llm.ModelCapabilities{}) {
		return llm.ModelCapabilities{
			ContextWindow:      128_000,
			MaxOutputTokens:    4_096,
			SupportsJSONOutput: true,
		}
	}
	return p.Caps
}

// CallCount returns the number of Complete calls recorded so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.CompleteCalls)
}

// LastCall returns the most recent Complete request, or a zero value if no
// call has been made.
func (p *Provider) LastCall() llm.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.CompleteCalls) == 0 {
		return llm.CompletionRequest{}
	}
	return p.CompleteCalls[len(p.CompleteCalls)-1]
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}
