package interview

import (
	"context"
	"time"

	"github.com/cam-hm/opik-career-agent/internal/observe"
	"github.com/cam-hm/opik-career-agent/internal/resilience"
	"github.com/cam-hm/opik-career-agent/internal/stage"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
	"github.com/cam-hm/opik-career-agent/pkg/provider/tts"
)

// Pipeline defaults applied when the configuration leaves a value unset.
const (
	defaultReasoningTimeout = 30 * time.Second
	defaultSynthesisTimeout = 20 * time.Second
	defaultMaxRetries       = 1
)

// PipelineConfig holds the turn pipeline's provider bindings and bounds.
type PipelineConfig struct {
	// Reasoning generates the interviewer reply. Required.
	Reasoning llm.Provider

	// ReasoningName is the provider name for logs and metrics.
	ReasoningName string

	// Synthesis converts the reply to audio. Nil runs the pipeline
	// text-only.
	Synthesis tts.Provider

	// SynthesisName is the provider name for logs and metrics.
	SynthesisName string

	// Voice selects the synthesis voice.
	Voice tts.VoiceProfile

	// ReasoningTimeout and SynthesisTimeout bound each provider attempt.
	// Zero selects the defaults (30s reasoning, 20s synthesis).
	ReasoningTimeout time.Duration
	SynthesisTimeout time.Duration

	// MaxRetries is the number of retries after a transient failure.
	// Zero selects the default of 1.
	MaxRetries int

	// Temperature is passed to the reasoning provider.
	Temperature float64

	// Metrics receives pipeline instrumentation. Nil disables recording.
	Metrics *observe.Metrics
}

// Pipeline runs one conversational turn: compose, reason, synthesize. It
// holds no per-session state; the [Controller] owns sequencing and the turn
// log.
type Pipeline struct {
	cfg      PipelineConfig
	composer *Composer
}

// NewPipeline creates a Pipeline with defaults applied.
func NewPipeline(composer *Composer, cfg PipelineConfig) *Pipeline {
	if cfg.ReasoningTimeout <= 0 {
		cfg.ReasoningTimeout = defaultReasoningTimeout
	}
	if cfg.SynthesisTimeout <= 0 {
		cfg.SynthesisTimeout = defaultSynthesisTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	return &Pipeline{cfg: cfg, composer: composer}
}

// RunTurn drives one turn from recognized utterance to terminal status and
// returns the resulting Turn record. The caller appends it to the session log
// exactly once.
//
// Reasoning failure after retry produces a Failed placeholder turn; the
// session continues. Synthesis failure after retry degrades to a text-only
// Delivered turn. A [*CompositionError] is the only error return: it marks
// broken stage configuration, not a provider fault.
func (p *Pipeline) RunTurn(ctx context.Context, sess *Session, st stage.Stage, tier stage.Tier, seq int, utterance string) (Turn, error) {
	ctx, span := observe.StartSpan(ctx, "interview.turn")
	defer span.End()

	turn := Turn{
		Seq:       seq,
		Utterance: utterance,
		StageID:   st.ID,
		Tier:      tier,
		StartedAt: time.Now(),
	}

	payload, err := p.composer.Compose(sess, st, tier, sess.Turns, utterance)
	if err != nil {
		return Turn{}, err
	}
	turn.Prompt = payload

	response, err := p.reason(ctx, payload)
	if err != nil {
		observe.Logger(ctx).Error("reasoning failed, turn degraded",
			"session_id", sess.ID, "seq", seq, "error", err)
		p.recordProviderError(ctx, p.cfg.ReasoningName, "reasoning")
		turn.Status = TurnFailed
		turn.EndedAt = time.Now()
		p.recordTurn(ctx, turn)
		return turn, nil
	}
	turn.Response = response

	if p.cfg.Synthesis != nil {
		clip, err := p.synthesize(ctx, response)
		if err != nil {
			// Audio is best-effort; text is authoritative.
			observe.Logger(ctx).Warn("synthesis failed, delivering text-only",
				"session_id", sess.ID, "seq", seq, "error", err)
			p.recordProviderError(ctx, p.cfg.SynthesisName, "synthesis")
		} else {
			turn.Audio = clip
		}
	}

	turn.Status = TurnDelivered
	turn.EndedAt = time.Now()
	p.recordTurn(ctx, turn)
	return turn, nil
}

// reason invokes the reasoning provider under the retry policy.
func (p *Pipeline) reason(ctx context.Context, payload PromptPayload) (string, error) {
	start := time.Now()
	resp, err := resilience.Do(ctx, resilience.RetryConfig{
		Provider:       p.cfg.ReasoningName,
		AttemptTimeout: p.cfg.ReasoningTimeout,
		MaxRetries:     p.cfg.MaxRetries,
	}, func(ctx context.Context) (*llm.CompletionResponse, error) {
		return p.cfg.Reasoning.Complete(ctx, llm.CompletionRequest{
			SystemPrompt: payload.SystemPrompt,
			Messages:     payload.Messages,
			Temperature:  p.cfg.Temperature,
		})
	})
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.ReasoningDuration.Record(ctx, time.Since(start).Seconds())
	}
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

// synthesize invokes the synthesis provider under the retry policy.
func (p *Pipeline) synthesize(ctx context.Context, text string) (*tts.AudioClip, error) {
	start := time.Now()
	clip, err := resilience.Do(ctx, resilience.RetryConfig{
		Provider:       p.cfg.SynthesisName,
		AttemptTimeout: p.cfg.SynthesisTimeout,
		MaxRetries:     p.cfg.MaxRetries,
	}, func(ctx context.Context) (*tts.AudioClip, error) {
		return p.cfg.Synthesis.Synthesize(ctx, tts.SpeechRequest{
			Text:  text,
			Voice: p.cfg.Voice,
		})
	})
	if p.cfg.Metrics != nil {
		p.cfg.Metrics.SynthesisDuration.Record(ctx, time.Since(start).Seconds())
	}
	return clip, err
}

func (p *Pipeline) recordTurn(ctx context.Context, turn Turn) {
	if p.cfg.Metrics == nil {
		return
	}
	p.cfg.Metrics.RecordTurn(ctx, turn.StageID, string(turn.Status))
	p.cfg.Metrics.TurnDuration.Record(ctx, turn.EndedAt.Sub(turn.StartedAt).Seconds())
}

func (p *Pipeline) recordProviderError(ctx context.Context, provider, kind string) {
	if p.cfg.Metrics == nil || provider == "" {
		return
	}
	p.cfg.Metrics.RecordProviderError(ctx, provider, kind)
}
