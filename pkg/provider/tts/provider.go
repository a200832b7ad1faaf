// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., ElevenLabs or a local
// Piper instance) and presents a uniform request/response interface. Synthesis
// is a bounded exchange: the caller hands over the full interviewer reply text
// and receives the complete audio clip, guarded by a context deadline. This
// keeps the degrade-to-text policy in the turn pipeline simple: a failed or
// timed-out synthesis never blocks turn delivery.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// VoiceProfile identifies a synthesis voice.
type VoiceProfile struct {
	// ID is the provider-assigned voice identifier.
	ID string

	// Name is a human-readable voice name.
	Name string

	// Language is a BCP-47 language tag (e.g., "en-US"). Optional.
	Language string
}

// SpeechRequest carries one synthesis request.
type SpeechRequest struct {
	// Text is the full text to synthesise. Must be non-empty.
	Text string

	// Voice selects the synthesis voice. Providers should return an error if
	// the requested voice is not available.
	Voice VoiceProfile
}

// AudioClip is the result of a synthesis request.
type AudioClip struct {
	// Data is the raw audio payload.
	Data []byte

	// Format names the encoding of Data (e.g., "pcm_16000", "mp3_44100_128").
	Format string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts req.Text into a complete audio clip. Returns an
	// error if synthesis fails or ctx is cancelled/expired first.
	Synthesize(ctx context.Context, req SpeechRequest) (*AudioClip, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
