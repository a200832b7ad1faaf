package interview

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cam-hm/opik-career-agent/internal/observe"
	"github.com/cam-hm/opik-career-agent/internal/stage"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
)

const (
	defaultShadowTimeout = 30 * time.Second

	// shortAnswerLength is the utterance length below which the analyzer
	// scores without a provider call: there is nothing to evaluate.
	shortAnswerLength = 10

	// shortAnswerScore is the flat score assigned to short answers.
	shortAnswerScore = 20
)

// AnalyzerConfig configures a shadow [Analyzer].
type AnalyzerConfig struct {
	// Provider scores turns against the rubric. Required.
	Provider llm.Provider

	// ProviderName is used for logs and metrics.
	ProviderName string

	// Timeout bounds one analysis. Zero selects the default of 30s.
	Timeout time.Duration

	// Metrics receives analyzer instrumentation. Nil disables recording.
	Metrics *observe.Metrics
}

// Analyzer scores delivered turns against the stage rubric, strictly off the
// conversational path. Dispatch never blocks; results arrive on [Scores].
// Failures are swallowed: a turn that cannot be scored simply produces no
// CompetencyScore.
type Analyzer struct {
	cfg    AnalyzerConfig
	scores chan CompetencyScore
	wg     sync.WaitGroup

	closeOnce sync.Once
}

// NewAnalyzer creates an Analyzer with defaults applied.
func NewAnalyzer(cfg AnalyzerConfig) *Analyzer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultShadowTimeout
	}
	return &Analyzer{
		cfg:    cfg,
		scores: make(chan CompetencyScore, 16),
	}
}

// Scores returns the channel on which analysis results arrive. The channel
// has a single intended consumer: the difficulty feedback loop.
func (a *Analyzer) Scores() <-chan CompetencyScore {
	return a.scores
}

// Dispatch schedules shadow analysis for turn and returns immediately. The
// analysis runs on a detached context with its own timeout so that neither
// turn delivery nor session cancellation waits on it.
func (a *Analyzer) Dispatch(turn Turn, st stage.Stage) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
		defer cancel()
		ctx, span := observe.StartSpan(ctx, "interview.shadow")
		defer span.End()

		start := time.Now()
		score, err := a.analyze(ctx, turn, st)
		if a.cfg.Metrics != nil {
			a.cfg.Metrics.ShadowDuration.Record(ctx, time.Since(start).Seconds())
		}
		if err != nil {
			// No score for this turn; evaluation richness degrades, the
			// conversation does not.
			observe.Logger(ctx).Warn("shadow analysis failed",
				"seq", turn.Seq, "stage", st.ID, "error", err)
			if a.cfg.Metrics != nil && a.cfg.ProviderName != "" {
				a.cfg.Metrics.RecordProviderError(ctx, a.cfg.ProviderName, "shadow")
			}
			return
		}

		select {
		case a.scores <- score:
		case <-ctx.Done():
		}
	}()
}

// Wait blocks until all dispatched analyses have finished. Intended for
// finalize and tests.
func (a *Analyzer) Wait() {
	a.wg.Wait()
}

// Close waits for in-flight analyses and closes the score channel. Safe to
// call more than once.
func (a *Analyzer) Close() {
	a.closeOnce.Do(func() {
		a.wg.Wait()
		close(a.scores)
	})
}

// analyze scores one turn against the stage rubric.
func (a *Analyzer) analyze(ctx context.Context, turn Turn, st stage.Stage) (CompetencyScore, error) {
	answer := strings.TrimSpace(turn.Utterance)
	if len(answer) < shortAnswerLength {
		// Too short to evaluate; flat low score, no provider call.
		return flatScore(turn.Seq, st.Rubric, shortAnswerScore), nil
	}

	prompt := scoringPrompt(turn, st)
	resp, err := a.cfg.Provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: prompt.SystemPrompt,
		Messages:     prompt.Messages,
		Temperature:  0.2,
		ForceJSON:    true,
	})
	if err != nil {
		return CompetencyScore{}, fmt.Errorf("shadow: score turn %d: %w", turn.Seq, err)
	}

	return parseScores(turn.Seq, st.Rubric, resp.Content)
}

// scoringPrompt builds the JSON-scoring instruction for one turn.
func scoringPrompt(turn Turn, st stage.Stage) PromptPayload {
	var sys strings.Builder
	sys.WriteString("You are an interview evaluator. Score the candidate's answer on each dimension from 0 to 100. ")
	sys.WriteString("Scores are independent per dimension. ")
	sys.WriteString("Respond with a single JSON object whose keys are exactly: ")
	sys.WriteString(strings.Join(st.Rubric, ", "))
	sys.WriteString(". Values are integers. No other keys, no prose.")

	user := fmt.Sprintf("Interviewer: %s\n\nCandidate: %s", turn.Response, turn.Utterance)
	if turn.Response == "" {
		user = "Candidate: " + turn.Utterance
	}

	return PromptPayload{
		SystemPrompt: sys.String(),
		Messages:     []llm.Message{{Role: llm.RoleUser, Content: user}},
	}
}

// parseScores decodes the provider's JSON reply into a CompetencyScore.
// Dimensions missing from the reply are dropped; values are clamped to
// [0, 100]. An empty result is an error so the caller produces no score.
func parseScores(seq int, rubric []string, content string) (CompetencyScore, error) {
	content = strings.TrimSpace(content)
	// Models occasionally fence the JSON despite instructions.
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var raw map[string]float64
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return CompetencyScore{}, fmt.Errorf("decode scores: %w", err)
	}

	dims := make(map[string]DimensionScore, len(rubric))
	total := 0
	for _, dim := range rubric {
		v, ok := raw[dim]
		if !ok {
			continue
		}
		s := int(v)
		if s < 0 {
			s = 0
		}
		if s > 100 {
			s = 100
		}
		dims[dim] = DimensionScore{Score: s, Level: RubricLevel(float64(s))}
		total += s
	}
	if len(dims) == 0 {
		return CompetencyScore{}, fmt.Errorf("no rubric dimensions in reply")
	}

	return CompetencyScore{
		TurnSeq:    seq,
		Dimensions: dims,
		Composite:  float64(total) / float64(len(dims)),
	}, nil
}

// flatScore assigns the same score to every rubric dimension.
func flatScore(seq int, rubric []string, score int) CompetencyScore {
	dims := make(map[string]DimensionScore, len(rubric))
	for _, dim := range rubric {
		dims[dim] = DimensionScore{Score: score, Level: RubricLevel(float64(score))}
	}
	return CompetencyScore{
		TurnSeq:    seq,
		Dimensions: dims,
		Composite:  float64(score),
	}
}
