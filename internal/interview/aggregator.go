package interview

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cam-hm/opik-career-agent/internal/observe"
	"github.com/cam-hm/opik-career-agent/pkg/provider/llm"
)

// Classification thresholds for the final report.
const (
	strengthThreshold = 75.0
	weaknessThreshold = 50.0

	defaultNarrativeTimeout = 30 * time.Second
)

// AggregatorConfig configures an [Aggregator].
type AggregatorConfig struct {
	// Provider generates the narrative summary. Nil skips the narrative.
	Provider llm.Provider

	// NarrativeTimeout bounds the narrative call. Zero selects 30s.
	NarrativeTimeout time.Duration
}

// Aggregator reduces a finished session's turn and score history into an
// [EvaluationReport].
type Aggregator struct {
	cfg AggregatorConfig
}

// NewAggregator creates an Aggregator with defaults applied.
func NewAggregator(cfg AggregatorConfig) *Aggregator {
	if cfg.NarrativeTimeout <= 0 {
		cfg.NarrativeTimeout = defaultNarrativeTimeout
	}
	return &Aggregator{cfg: cfg}
}

// Finalize computes the evaluation report for sess from its turn log and the
// shadow scores collected during the session.
//
// Only Delivered turns count. A session with zero Delivered turns yields an
// invalid report with overall score 0 and no strengths or weaknesses. Turns
// without a score are excluded from the mean rather than treated as zero.
// Narrative failure leaves the statistics intact and the narrative empty.
func (a *Aggregator) Finalize(ctx context.Context, sess *Session, scores []CompetencyScore) *EvaluationReport {
	delivered := make(map[int]Turn)
	for _, t := range sess.Turns {
		if t.Status == TurnDelivered {
			delivered[t.Seq] = t
		}
	}

	if len(delivered) == 0 {
		return &EvaluationReport{
			Valid:      false,
			Dimensions: map[string]DimensionSummary{},
			Strengths:  []string{},
			Weaknesses: []string{},
			Narrative:  "No delivered turns; the session ended before any exchange completed.",
		}
	}

	// Per-dimension sums across scores belonging to delivered turns.
	dimSums := make(map[string]float64)
	dimCounts := make(map[string]int)
	var compositeSum float64
	scored := 0
	for _, sc := range scores {
		if _, ok := delivered[sc.TurnSeq]; !ok {
			continue
		}
		scored++
		compositeSum += sc.Composite
		for dim, ds := range sc.Dimensions {
			dimSums[dim] += float64(ds.Score)
			dimCounts[dim]++
		}
	}

	report := &EvaluationReport{
		Valid:          true,
		Dimensions:     make(map[string]DimensionSummary, len(dimSums)),
		Strengths:      []string{},
		Weaknesses:     []string{},
		DeliveredTurns: len(delivered),
		ScoredTurns:    scored,
	}
	if scored > 0 {
		report.OverallScore = compositeSum / float64(scored)
	}

	dims := make([]string, 0, len(dimSums))
	for dim := range dimSums {
		dims = append(dims, dim)
	}
	sort.Strings(dims)

	for _, dim := range dims {
		mean := dimSums[dim] / float64(dimCounts[dim])
		report.Dimensions[dim] = DimensionSummary{Mean: mean, Level: RubricLevel(mean)}
		switch {
		case mean >= strengthThreshold:
			report.Strengths = append(report.Strengths, dim)
		case mean < weaknessThreshold:
			report.Weaknesses = append(report.Weaknesses, dim)
		}
	}

	report.Narrative = a.narrative(ctx, sess, report)
	return report
}

// narrative asks the reasoning provider for a short summary. Failure returns
// the empty string; the report's statistics stand on their own.
func (a *Aggregator) narrative(ctx context.Context, sess *Session, report *EvaluationReport) string {
	if a.cfg.Provider == nil {
		return ""
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.NarrativeTimeout)
	defer cancel()

	resp, err := a.cfg.Provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You are an interview evaluator writing a final assessment. Write 3-5 sentences summarizing the candidate's performance. Be specific and balanced. Do not restate the numeric scores.",
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: narrativeSeed(sess, report)},
		},
		Temperature: 0.4,
		MaxTokens:   400,
	})
	if err != nil {
		observe.Logger(ctx).Warn("narrative generation failed, report keeps statistics only",
			"session_id", sess.ID, "error", err)
		return ""
	}
	return strings.TrimSpace(resp.Content)
}

// narrativeSeed builds the transcript-and-scores context for the narrative
// call.
func narrativeSeed(sess *Session, report *EvaluationReport) string {
	var b strings.Builder
	if sess.TargetRole != "" {
		fmt.Fprintf(&b, "Role: %s\n", sess.TargetRole)
	}
	fmt.Fprintf(&b, "Overall score: %.1f across %d delivered turns (%d scored).\n",
		report.OverallScore, report.DeliveredTurns, report.ScoredTurns)

	if len(report.Dimensions) > 0 {
		b.WriteString("Dimension means:\n")
		dims := make([]string, 0, len(report.Dimensions))
		for dim := range report.Dimensions {
			dims = append(dims, dim)
		}
		sort.Strings(dims)
		for _, dim := range dims {
			s := report.Dimensions[dim]
			fmt.Fprintf(&b, "- %s: %.1f (%s)\n", dim, s.Mean, s.Level)
		}
	}

	b.WriteString("\nTranscript:\n")
	for _, t := range sess.Turns {
		if t.Status != TurnDelivered {
			continue
		}
		fmt.Fprintf(&b, "Candidate: %s\nInterviewer: %s\n", t.Utterance, t.Response)
	}
	return b.String()
}
