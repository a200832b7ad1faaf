// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider to return controlled audio clips to consumers and to verify
// the text and VoiceProfile passed to the TTS backend.
//
// Example:
//
//	p := &mock.Provider{
//	    SynthesizeClip:   &tts.AudioClip{Data: []byte("audio"), Format: "pcm_16000"},
//	    ListVoicesResult: []tts.VoiceProfile{{ID: "v1", Name: "Alice"}},
//	}
package mock

import (
	"context"
	"sync"

	"github.com/cam-hm/opik-career-agent/pkg/provider/tts"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Ctx is the context passed to Synthesize.
	Ctx context.Context
	// Req is the request passed to Synthesize.
	Req tts.SpeechRequest
}

// Provider is a mock implementation of tts.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SynthesizeClip is returned by Synthesize when SynthesizeErr is nil.
	// If nil, a small non-empty clip is returned.
	SynthesizeClip *tts.AudioClip

	// SynthesizeErr, if non-nil, is returned as the error from Synthesize.
	SynthesizeErr error

	// SynthesizeFunc, when non-nil, overrides SynthesizeClip/SynthesizeErr
	// and is invoked for each call with the 1-based attempt number.
	SynthesizeFunc func(ctx context.Context, req tts.SpeechRequest, attempt int) (*tts.AudioClip, error)

	// ListVoicesResult is returned by ListVoices.
	ListVoicesResult []tts.VoiceProfile

	// ListVoicesErr, if non-nil, is returned as the error from ListVoices.
	ListVoicesErr error

	// --- Call records ---

	// SynthesizeCalls records every call to Synthesize in order.
	SynthesizeCalls []SynthesizeCall
}

// Ensure Provider implements tts.Provider at compile time.
var _ tts.Provider = (*Provider)(nil)

// Synthesize records the call and returns the configured clip or error.
func (p *Provider) Synthesize(ctx context.Context, req tts.SpeechRequest) (*tts.AudioClip, error) {
	p.mu.Lock()
	p.SynthesizeCalls = append(p.SynthesizeCalls, SynthesizeCall{Ctx: ctx, Req: req})
	attempt := len(p.SynthesizeCalls)
	fn := p.SynthesizeFunc
	clip, err := p.SynthesizeClip, p.SynthesizeErr
	p.mu.Unlock()

	if cerr := ctx.Err(); cerr != nil {
		return nil, cerr
	}
	if fn != nil {
		return fn(ctx, req, attempt)
	}
	if err != nil {
		return nil, err
	}
	if clip != nil {
		return clip, nil
	}
	return &tts.AudioClip{Data: []byte("audio"), Format: "pcm_16000"}, nil
}

// ListVoices records nothing and returns ListVoicesResult, ListVoicesErr.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ListVoicesResult, p.ListVoicesErr
}

// CallCount returns the number of Synthesize calls recorded so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.SynthesizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.SynthesizeCalls = nil
}
